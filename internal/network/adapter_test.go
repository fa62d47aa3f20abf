package network

import (
	"net"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcastAddr(t *testing.T) {
	testCases := []struct {
		ip, mask, want string
	}{
		{"192.168.1.17", "255.255.255.0", "192.168.1.255"},
		{"10.1.2.3", "255.0.0.0", "10.255.255.255"},
		{"172.16.5.4", "255.255.240.0", "172.16.15.255"},
		{"192.168.1.17", "255.255.255.255", "192.168.1.17"},
	}
	for _, tc := range testCases {
		got, err := BroadcastAddr(netip.MustParseAddr(tc.ip), netip.MustParseAddr(tc.mask))
		require.NoError(t, err)
		assert.Equal(t, netip.MustParseAddr(tc.want), got, "%s/%s", tc.ip, tc.mask)
	}

	_, err := BroadcastAddr(netip.MustParseAddr("fe80::1"), netip.MustParseAddr("255.255.255.0"))
	assert.Error(t, err)
}

func TestAdaptersFor(t *testing.T) {
	mac, _ := net.ParseMAC("00:11:22:33:44:55")
	iface := net.Interface{Name: "eth0", HardwareAddr: mac, Flags: net.FlagUp | net.FlagBroadcast}
	addrs := []net.Addr{
		&net.IPNet{IP: net.ParseIP("192.168.1.17"), Mask: net.CIDRMask(24, 32)},
		&net.IPNet{IP: net.ParseIP("fe80::1"), Mask: net.CIDRMask(64, 128)},
		&net.IPAddr{IP: net.ParseIP("10.0.0.1")},
	}

	list := adaptersFor(iface, addrs)
	require.Len(t, list, 1)
	a := list[0]
	assert.Equal(t, "eth0", a.Name)
	assert.Equal(t, netip.MustParseAddr("192.168.1.17"), a.IP)
	assert.Equal(t, netip.MustParseAddr("255.255.255.0"), a.Mask)
	assert.Equal(t, netip.MustParseAddr("192.168.1.255"), a.Broadcast)
	assert.Equal(t, "eth0 (broadcast) - 192.168.1.17", a.String())
}

func TestSelect(t *testing.T) {
	mac1, _ := net.ParseMAC("00:11:22:33:44:55")
	mac2, _ := net.ParseMAC("66:77:88:99:aa:bb")
	adapters := []Adapter{
		{Name: "eth0", MAC: mac1, IP: netip.MustParseAddr("192.168.1.2")},
		{Name: "wlan0", MAC: mac2, IP: netip.MustParseAddr("10.0.0.2")},
	}

	a, err := Select(adapters, "")
	require.NoError(t, err)
	assert.Equal(t, "eth0", a.Name)

	a, err = Select(adapters, "66-77-88-99-AA-BB")
	require.NoError(t, err)
	assert.Equal(t, "wlan0", a.Name)

	a, err = Select(adapters, "wlan0")
	require.NoError(t, err)
	assert.Equal(t, "wlan0", a.Name)

	_, err = Select(adapters, "eth9")
	assert.ErrorIs(t, err, ErrNoAdapter)

	_, err = Select(nil, "")
	assert.ErrorIs(t, err, ErrNoAdapter)
}
