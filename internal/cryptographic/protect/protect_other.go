//go:build !windows

package protect

type platform struct{}

func (platform) Protect([]byte) ([]byte, error) { return nil, ErrUnsupported }

func (platform) Unprotect([]byte) ([]byte, error) { return nil, ErrUnsupported }
