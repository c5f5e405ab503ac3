// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

package exchange

import (
	"context"
	"encoding/json"

	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/kr/pretty"

	"github.com/juju/relationdata/core/fields"
)

// Diff holds the field names that changed between two observations of
// the peer's namespace.
type Diff struct {
	Added   set.Strings
	Changed set.Strings
	Removed set.Strings
}

// IsEmpty reports whether nothing changed.
func (d Diff) IsEmpty() bool {
	return d.Added.IsEmpty() && d.Changed.IsEmpty() && d.Removed.IsEmpty()
}

// ComputeDiff compares the peer's namespace against the snapshot taken
// by the previous call and returns the difference, then stores the new
// snapshot in this unit's own namespace. Each change is therefore
// reported exactly once per observing unit; a second call without an
// intervening peer write returns an empty diff.
//
// Secret-reference fields are diffed by their reference value, not
// their content: a secret whose content changed in place does not show
// up here, the platform signals that through its own secret events.
func (e *Engine) ComputeDiff(ctx context.Context, relationID int) (Diff, error) {
	rel, err := e.channel.Relation(ctx, relationID)
	if err != nil {
		return Diff{}, errors.Trace(err)
	}
	raw, err := e.channel.ReadApplication(ctx, relationID, rel.Other(e.app))
	if err != nil {
		return Diff{}, errors.Trace(err)
	}
	current := make(map[string]string)
	for name, value := range raw {
		if name == fields.Snapshot || value == "" {
			continue
		}
		current[name] = value
	}

	previous, err := e.loadSnapshot(ctx, relationID)
	if err != nil {
		return Diff{}, errors.Trace(err)
	}
	diff := Diff{
		Added:   set.NewStrings(),
		Changed: set.NewStrings(),
		Removed: set.NewStrings(),
	}
	for name, value := range current {
		old, ok := previous[name]
		if !ok {
			diff.Added.Add(name)
		} else if old != value {
			diff.Changed.Add(name)
		}
	}
	for name := range previous {
		if _, ok := current[name]; !ok {
			diff.Removed.Add(name)
		}
	}

	if err := e.storeSnapshot(ctx, relationID, current); err != nil {
		return Diff{}, errors.Trace(err)
	}
	logger.Tracef("diff of %s: %# v", rel, pretty.Formatter(diff))
	return diff, nil
}

// loadSnapshot reads the previous observation from this unit's own
// namespace. A unit that has never observed the relation starts from
// an empty snapshot, so everything the peer has published reports as
// added.
func (e *Engine) loadSnapshot(ctx context.Context, relationID int) (map[string]string, error) {
	own, err := e.channel.ReadUnit(ctx, relationID, e.unit)
	if err != nil {
		return nil, errors.Trace(err)
	}
	raw := own[fields.Snapshot]
	if raw == "" {
		return nil, nil
	}
	var snapshot map[string]string
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return nil, errors.Annotatef(err, "parsing relation %d snapshot", relationID)
	}
	return snapshot, nil
}

func (e *Engine) storeSnapshot(ctx context.Context, relationID int, snapshot map[string]string) error {
	encoded, err := json.Marshal(snapshot)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(e.channel.WriteUnit(ctx, relationID, e.unit, map[string]string{
		fields.Snapshot: string(encoded),
	}))
}
