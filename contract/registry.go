// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

package contract

import (
	"fmt"
	"sort"

	"github.com/juju/errors"
)

// registry maps from backend type to the contract registered for it.
var registry = map[string]Contract{}

// Register records a contract for its backend type. It panics on an
// invalid contract or a duplicate backend name; contracts are
// registered from init functions or at configuration time.
func Register(c Contract) {
	if err := c.Validate(); err != nil {
		panic(fmt.Errorf("registering contract: %v", err))
	}
	if _, ok := registry[c.Backend]; ok {
		panic(fmt.Errorf("duplicate contract for backend %q", c.Backend))
	}
	registry[c.Backend] = c
}

// ForBackend returns the contract registered for the named backend
// type.
func ForBackend(backend string) (Contract, error) {
	c, ok := registry[backend]
	if !ok {
		return Contract{}, errors.NotFoundf("contract for backend %q", backend)
	}
	return c, nil
}

// RegisteredBackends returns the backend types with registered
// contracts, sorted.
func RegisteredBackends() []string {
	var backends []string
	for name := range registry {
		backends = append(backends, name)
	}
	sort.Strings(backends)
	return backends
}
