// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

// Package testing provides in-memory doubles for the platform
// surfaces the exchange engine depends on: the relation data channel
// and the leadership checker.
package testing

import (
	"context"
	"sync"

	"github.com/juju/errors"

	"github.com/juju/relationdata/core/life"
	"github.com/juju/relationdata/core/relation"
)

// Channel is an in-memory exchange channel. Writes are visible to
// subsequent reads immediately, as they are on the platform, and the
// channel records how many namespace writes were made so tests can
// assert that retried operations converge instead of re-writing.
type Channel struct {
	mu        sync.Mutex
	relations map[int]relation.Relation
	apps      map[int]map[string]map[string]string
	units     map[int]map[string]map[string]string
	appWrites int
}

// NewChannel returns an empty channel with no relations.
func NewChannel() *Channel {
	return &Channel{
		relations: make(map[int]relation.Relation),
		apps:      make(map[int]map[string]map[string]string),
		units:     make(map[int]map[string]map[string]string),
	}
}

// AddRelation registers a relation so reads and writes against its id
// succeed.
func (ch *Channel) AddRelation(rel relation.Relation) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.relations[rel.ID] = rel
	if ch.apps[rel.ID] == nil {
		ch.apps[rel.ID] = make(map[string]map[string]string)
	}
	if ch.units[rel.ID] == nil {
		ch.units[rel.ID] = make(map[string]map[string]string)
	}
}

// RemoveRelation drops a relation; subsequent operations against its
// id fail with NotFound, as they do once the platform has removed it.
func (ch *Channel) RemoveRelation(relationID int) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	delete(ch.relations, relationID)
	delete(ch.apps, relationID)
	delete(ch.units, relationID)
}

// SetLife changes the life of a registered relation.
func (ch *Channel) SetLife(relationID int, value life.Value) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	rel, ok := ch.relations[relationID]
	if !ok {
		return
	}
	rel.Life = value
	ch.relations[relationID] = rel
}

// Relation implements exchange.Channel.
func (ch *Channel) Relation(_ context.Context, relationID int) (relation.Relation, error) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	rel, ok := ch.relations[relationID]
	if !ok {
		return relation.Relation{}, errors.NotFoundf("relation %d", relationID)
	}
	return rel, nil
}

// ReadApplication implements exchange.Channel.
func (ch *Channel) ReadApplication(_ context.Context, relationID int, application string) (map[string]string, error) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	apps, ok := ch.apps[relationID]
	if !ok {
		return nil, errors.NotFoundf("relation %d", relationID)
	}
	return copyMap(apps[application]), nil
}

// ReadUnit implements exchange.Channel.
func (ch *Channel) ReadUnit(_ context.Context, relationID int, unit string) (map[string]string, error) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	units, ok := ch.units[relationID]
	if !ok {
		return nil, errors.NotFoundf("relation %d", relationID)
	}
	return copyMap(units[unit]), nil
}

// WriteApplication implements exchange.Channel.
func (ch *Channel) WriteApplication(_ context.Context, relationID int, application string, values map[string]string) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	apps, ok := ch.apps[relationID]
	if !ok {
		return errors.NotFoundf("relation %d", relationID)
	}
	ch.appWrites++
	apps[application] = merge(apps[application], values)
	return nil
}

// WriteUnit implements exchange.Channel.
func (ch *Channel) WriteUnit(_ context.Context, relationID int, unit string, values map[string]string) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	units, ok := ch.units[relationID]
	if !ok {
		return errors.NotFoundf("relation %d", relationID)
	}
	units[unit] = merge(units[unit], values)
	return nil
}

// SeedApplication primes an application namespace without counting as
// a write, for arranging peer state in tests.
func (ch *Channel) SeedApplication(relationID int, application string, values map[string]string) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	apps, ok := ch.apps[relationID]
	if !ok {
		return
	}
	apps[application] = merge(apps[application], values)
}

// SeedUnit primes a unit namespace without counting as a write.
func (ch *Channel) SeedUnit(relationID int, unit string, values map[string]string) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	units, ok := ch.units[relationID]
	if !ok {
		return
	}
	units[unit] = merge(units[unit], values)
}

// ApplicationData returns a copy of an application namespace for
// assertions.
func (ch *Channel) ApplicationData(relationID int, application string) map[string]string {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return copyMap(ch.apps[relationID][application])
}

// UnitData returns a copy of a unit namespace for assertions.
func (ch *Channel) UnitData(relationID int, unit string) map[string]string {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return copyMap(ch.units[relationID][unit])
}

// ApplicationWrites returns how many application namespace writes have
// been made through the channel.
func (ch *Channel) ApplicationWrites() int {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.appWrites
}

func merge(namespace, values map[string]string) map[string]string {
	if namespace == nil {
		namespace = make(map[string]string)
	}
	for name, value := range values {
		if value == "" {
			delete(namespace, name)
			continue
		}
		namespace[name] = value
	}
	return namespace
}

func copyMap(m map[string]string) map[string]string {
	result := make(map[string]string, len(m))
	for k, v := range m {
		result[k] = v
	}
	return result
}
