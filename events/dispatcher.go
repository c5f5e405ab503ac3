// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

package events

import (
	"context"

	"github.com/juju/errors"
	"github.com/juju/worker/v4"
	"gopkg.in/tomb.v2"

	coresecrets "github.com/juju/relationdata/core/secrets"
)

// Logger represents the methods used by this package to log information.
type Logger interface {
	Debugf(string, ...interface{})
	Warningf(string, ...interface{})
}

// ChangeKind identifies what a Change reports.
type ChangeKind string

const (
	// DataChanged reports a change to the peer's half of a relation.
	DataChanged ChangeKind = "data-changed"

	// SecretChanged reports a new revision of a routed secret.
	SecretChanged ChangeKind = "secret-changed"

	// RelationBroken reports the departure of a relation.
	RelationBroken ChangeKind = "relation-broken"
)

// Change is one raw platform event awaiting dispatch.
type Change struct {
	Kind       ChangeKind
	RelationID int

	// Group is only set for SecretChanged.
	Group coresecrets.SecretGroup
}

// Config holds the dependencies of a dispatcher worker.
type Config struct {
	Handler Handler
	Changes <-chan Change
	Logger  Logger
}

// Handler reacts to dispatched changes. A *Notifier satisfies it.
type Handler interface {
	HandleRelationChanged(ctx context.Context, relationID int) error
	HandleSecretChanged(ctx context.Context, relationID int, group coresecrets.SecretGroup) error
	HandleRelationBroken(ctx context.Context, relationID int) error
}

// Validate returns an error if the worker cannot be started.
func (config Config) Validate() error {
	if config.Handler == nil {
		return errors.NotValidf("nil Handler")
	}
	if config.Changes == nil {
		return errors.NotValidf("nil Changes")
	}
	if config.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	return nil
}

// NewDispatcher starts a worker draining the changes channel into the
// handler, one change at a time in arrival order. A handler error
// stops the worker.
func NewDispatcher(config Config) (worker.Worker, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	d := &dispatcher{config: config}
	d.tomb.Go(d.loop)
	return d, nil
}

type dispatcher struct {
	tomb   tomb.Tomb
	config Config
}

// Kill is part of the worker.Worker interface.
func (d *dispatcher) Kill() {
	d.tomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (d *dispatcher) Wait() error {
	return d.tomb.Wait()
}

func (d *dispatcher) loop() error {
	ctx := d.tomb.Context(context.Background())
	for {
		select {
		case <-d.tomb.Dying():
			return tomb.ErrDying
		case change, ok := <-d.config.Changes:
			if !ok {
				return errors.New("relation change channel closed")
			}
			if err := d.dispatch(ctx, change); err != nil {
				return errors.Trace(err)
			}
		}
	}
}

func (d *dispatcher) dispatch(ctx context.Context, change Change) error {
	d.config.Logger.Debugf("dispatching %s for relation %d", change.Kind, change.RelationID)
	switch change.Kind {
	case DataChanged:
		return d.config.Handler.HandleRelationChanged(ctx, change.RelationID)
	case SecretChanged:
		return d.config.Handler.HandleSecretChanged(ctx, change.RelationID, change.Group)
	case RelationBroken:
		return d.config.Handler.HandleRelationBroken(ctx, change.RelationID)
	}
	d.config.Logger.Warningf("ignoring change of unknown kind %q", change.Kind)
	return nil
}
