package network

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
)

var ErrNoAdapter = errors.New("no usable IPv4 network adapter")

type Adapter struct {
	Name        string
	Description string
	IP          netip.Addr
	Mask        netip.Addr
	Broadcast   netip.Addr
	MAC         net.HardwareAddr
}

func (a Adapter) String() string {
	if a.Description == "" {
		return fmt.Sprintf("%s - %s", a.Name, a.IP)
	}
	return fmt.Sprintf("%s (%s) - %s", a.Name, a.Description, a.IP)
}

// BroadcastAddr returns ip | ^mask for IPv4 addresses.
func BroadcastAddr(ip, mask netip.Addr) (netip.Addr, error) {
	if !ip.Is4() || !mask.Is4() {
		return netip.Addr{}, fmt.Errorf("broadcast address needs IPv4, got %v/%v", ip, mask)
	}
	ipb := ip.As4()
	mb := mask.As4()
	var b [4]byte
	for i := range b {
		b[i] = ipb[i] | ^mb[i]
	}
	return netip.AddrFrom4(b), nil
}

// ListAdapters returns every IPv4 address on an interface that is up and is
// not a loopback, one entry per address.
func ListAdapters() ([]Adapter, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}

	var list []Adapter
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		list = append(list, adaptersFor(iface, addrs)...)
	}
	return list, nil
}

func adaptersFor(iface net.Interface, addrs []net.Addr) []Adapter {
	var list []Adapter
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		ip4 := ipnet.IP.To4()
		if ip4 == nil || len(ipnet.Mask) != net.IPv4len {
			continue
		}
		ip := netip.AddrFrom4([4]byte(ip4))
		mask := netip.AddrFrom4([4]byte(ipnet.Mask))
		bcast, err := BroadcastAddr(ip, mask)
		if err != nil {
			continue
		}
		list = append(list, Adapter{
			Name:        iface.Name,
			Description: describe(iface),
			IP:          ip,
			Mask:        mask,
			Broadcast:   bcast,
			MAC:         iface.HardwareAddr,
		})
	}
	return list
}

func describe(iface net.Interface) string {
	var flags []string
	if iface.Flags&net.FlagBroadcast != 0 {
		flags = append(flags, "broadcast")
	}
	if iface.Flags&net.FlagPointToPoint != 0 {
		flags = append(flags, "point-to-point")
	}
	return strings.Join(flags, ",")
}

// Select picks an adapter by MAC address or interface name. An empty key
// selects the first adapter.
func Select(adapters []Adapter, key string) (Adapter, error) {
	if len(adapters) == 0 {
		return Adapter{}, ErrNoAdapter
	}
	if key == "" {
		return adapters[0], nil
	}

	if mac, err := net.ParseMAC(key); err == nil {
		for _, a := range adapters {
			if a.MAC.String() == mac.String() {
				return a, nil
			}
		}
	}
	for _, a := range adapters {
		if a.Name == key {
			return a, nil
		}
	}
	return Adapter{}, fmt.Errorf("%w: %q not found", ErrNoAdapter, key)
}

// GetLocalAdapterInfo returns the local and broadcast address of the adapter
// selected by key.
func GetLocalAdapterInfo(key string) (local, broadcast netip.Addr, err error) {
	adapters, err := ListAdapters()
	if err != nil {
		return netip.Addr{}, netip.Addr{}, err
	}
	a, err := Select(adapters, key)
	if err != nil {
		return netip.Addr{}, netip.Addr{}, err
	}
	return a.IP, a.Broadcast, nil
}
