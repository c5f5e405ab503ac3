// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

// Package life holds the lifecycle values used to describe whether a
// relation is still in service or on its way out.
package life

import (
	"github.com/juju/errors"
)

// Value indicates the lifecycle state of some entity.
type Value string

const (
	Alive Value = "alive"
	Dying Value = "dying"
	Dead  Value = "dead"
)

// Validate returns an error if the value is not known.
func (v Value) Validate() error {
	switch v {
	case Alive, Dying, Dead:
		return nil
	}
	return errors.NotValidf("life value %q", v)
}

// Predicate is a predicate.
type Predicate func(Value) bool

// IsAlive is a Predicate that returns true if its argument is Alive.
func IsAlive(v Value) bool {
	return v == Alive
}

// IsNotAlive is a Predicate that returns true if its argument is not Alive.
func IsNotAlive(v Value) bool {
	return v != Alive
}

// IsDead is a Predicate that returns true if its argument is Dead.
func IsDead(v Value) bool {
	return v == Dead
}

// IsNotDead is a Predicate that returns true if its argument is not Dead.
func IsNotDead(v Value) bool {
	return v != Dead
}
