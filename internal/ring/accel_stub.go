//go:build !giouring
// +build !giouring

package ring

import "fmt"

// NewAccelRing is available when built with `-tags giouring`.
func NewAccelRing(cfg Config) (Ring, error) {
	return nil, fmt.Errorf("ring: giouring not enabled; build with -tags giouring")
}
