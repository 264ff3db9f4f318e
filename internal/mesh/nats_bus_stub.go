//go:build !nats

package mesh

import "fmt"

// NewNatsBus is the stub for builds without the 'nats' tag.
func NewNatsBus(url string) (Bus, error) {
	return nil, fmt.Errorf("nats backend not available: build with -tags nats")
}
