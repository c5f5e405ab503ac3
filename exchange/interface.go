// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

package exchange

import (
	"context"

	"github.com/juju/relationdata/core/relation"
)

// Channel is the shared data surface the platform provides for a
// relation: one application-wide namespace per side, mutated by that
// side's leader, and one namespace per unit, mutated by that unit.
// Reads are unrestricted; writes merge values, and a key written with
// an empty value is removed.
type Channel interface {
	// Relation returns the identity of the given relation.
	Relation(ctx context.Context, relationID int) (relation.Relation, error)

	// ReadApplication returns the application namespace of the named
	// application on the relation.
	ReadApplication(ctx context.Context, relationID int, application string) (map[string]string, error)

	// ReadUnit returns the namespace of the named unit on the
	// relation.
	ReadUnit(ctx context.Context, relationID int, unit string) (map[string]string, error)

	// WriteApplication merges values into the application namespace.
	WriteApplication(ctx context.Context, relationID int, application string, values map[string]string) error

	// WriteUnit merges values into the unit namespace.
	WriteUnit(ctx context.Context, relationID int, unit string, values map[string]string) error
}

// LeadershipChecker reports whether this unit currently leads its
// application. Application namespace writes are permitted only while
// it does.
type LeadershipChecker interface {
	IsLeader() (bool, error)
}
