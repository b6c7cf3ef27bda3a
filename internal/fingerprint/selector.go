package fingerprint

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
)

// ErrUnsupported is returned when a requested fingerprint is not in the catalog.
var ErrUnsupported = errors.New("unsupported impersonate")

// Selector validates requested fingerprints or picks one at random.
type Selector struct {
	catalog *Catalog
	random  io.Reader
}

// NewSelector creates a Selector drawing from crypto/rand.
func NewSelector(c *Catalog) *Selector {
	return &Selector{catalog: c, random: rand.Reader}
}

// Catalog returns the catalog the selector draws from.
func (s *Selector) Catalog() *Catalog {
	return s.catalog
}

// Select returns requested when it is a catalog member, or a uniformly
// random member when requested is empty.
func (s *Selector) Select(requested string) (*Profile, error) {
	if requested != "" {
		p, ok := s.catalog.Lookup(requested)
		if !ok {
			return nil, fmt.Errorf("%w=%s", ErrUnsupported, requested)
		}
		return p, nil
	}

	if s.catalog.Len() == 0 {
		return nil, errors.New("fingerprint catalog is empty")
	}
	n, err := rand.Int(s.random, big.NewInt(int64(s.catalog.Len())))
	if err != nil {
		return nil, fmt.Errorf("pick fingerprint: %w", err)
	}
	p, _ := s.catalog.Lookup(s.catalog.ids[n.Int64()])
	return p, nil
}
