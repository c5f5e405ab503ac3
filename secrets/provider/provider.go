// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

// Package provider holds the secret store providers able to back the
// relation data exchange.
package provider

import (
	"fmt"

	"github.com/juju/errors"

	"github.com/juju/relationdata/secrets"
)

// StoreConfig holds the type and type-specific attributes of a secret
// store.
type StoreConfig struct {
	StoreType string
	Params    map[string]interface{}
}

// StoreProvider instances create secret stores of one type.
type StoreProvider interface {
	// Type returns the provider type, e.g. "vault".
	Type() string

	// NewStore returns a store built from cfg.
	NewStore(cfg *StoreConfig) (secrets.Store, error)
}

var providers = map[string]StoreProvider{}

// Register records p under its type. It panics on a duplicate type;
// providers register themselves from init functions.
func Register(p StoreProvider) {
	name := p.Type()
	if _, ok := providers[name]; ok {
		panic(fmt.Errorf("duplicate secret store provider %q", name))
	}
	providers[name] = p
}

// Provider returns the registered provider of the given type.
func Provider(storeType string) (StoreProvider, error) {
	p, ok := providers[storeType]
	if !ok {
		return nil, errors.NotFoundf("secret store provider %q", storeType)
	}
	return p, nil
}

// Open builds a store from cfg using its registered provider.
func Open(cfg *StoreConfig) (secrets.Store, error) {
	p, err := Provider(cfg.StoreType)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return p.NewStore(cfg)
}
