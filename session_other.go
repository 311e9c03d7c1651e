//go:build !windows

package dxgiscreengrab

// newPlatformSession returns an error on platforms without an
// output-duplication compositor API.
func newPlatformSession(cfg Config) (session, error) {
	return nil, ErrNotSupported
}
