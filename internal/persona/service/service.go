// Package service implements identity verification against the civil
// registry: validate the identifier shape, then look the person up.
package service

import (
	"context"
	"errors"
	"fmt"

	"reniec/internal/persona"
	"reniec/internal/persona/store"
)

// ErrInvalidDNI marks identifiers that are not eight decimal digits. The
// registry is never consulted for these; validation fails closed.
var ErrInvalidDNI = errors.New("invalid dni")

// Registry is the slice of the store the verifier needs.
type Registry interface {
	FindByDNI(ctx context.Context, dni string) (*persona.Person, error)
}

// Verifier answers lookup requests. It is stateless and safe for
// concurrent use.
type Verifier struct {
	registry Registry
}

func NewVerifier(registry Registry) *Verifier {
	return &Verifier{registry: registry}
}

// Verify returns the registry record for dni. Malformed identifiers return
// ErrInvalidDNI without touching the registry, unknown ones surface
// store.ErrNotFound, and anything else is a backend failure.
func (v *Verifier) Verify(ctx context.Context, dni string) (*persona.Person, error) {
	if !persona.ValidDNI(dni) {
		return nil, ErrInvalidDNI
	}
	p, err := v.registry.FindByDNI(ctx, dni)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, err
	case err != nil:
		return nil, fmt.Errorf("registry lookup: %w", err)
	}
	return p, nil
}
