// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

// Package relation holds the identity of a relation between two
// applications and the vocabulary describing each side's part in the
// data exchange.
package relation

import (
	"fmt"

	"github.com/juju/errors"

	"github.com/juju/relationdata/core/life"
)

// Role identifies which side of a relation an application plays.
type Role string

const (
	// Provider publishes connection data for the requirer to consume.
	Provider Role = "provider"

	// Requirer consumes the data published by the provider.
	Requirer Role = "requirer"
)

// Validate returns an error if the role is not known.
func (r Role) Validate() error {
	switch r {
	case Provider, Requirer:
		return nil
	}
	return errors.NotValidf("relation role %q", r)
}

// Counterpart returns the role played by the application on the other
// side of the relation.
func (r Role) Counterpart() Role {
	if r == Provider {
		return Requirer
	}
	return Provider
}

// Relation identifies one relation between two applications. The
// identity is immutable for the life of the relation.
type Relation struct {
	// ID is the platform-assigned relation id, unique within a model.
	ID int

	// Name is the endpoint name the relation was formed over.
	Name string

	// LocalApplication and RemoteApplication name the two sides from
	// the point of view of the process holding this value.
	LocalApplication  string
	RemoteApplication string

	// Life reports whether the relation is still in service.
	Life life.Value
}

// String returns the conventional name:id rendering, e.g. "database:7".
func (r Relation) String() string {
	return fmt.Sprintf("%s:%d", r.Name, r.ID)
}

// Other returns the application on the other side of the relation from
// the named one.
func (r Relation) Other(application string) string {
	if r.LocalApplication == application {
		return r.RemoteApplication
	}
	return r.LocalApplication
}
