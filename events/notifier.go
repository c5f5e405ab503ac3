// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

package events

import (
	"context"

	"github.com/juju/errors"
	"github.com/juju/pubsub/v2"

	"github.com/juju/relationdata/core/relation"
	coresecrets "github.com/juju/relationdata/core/secrets"
	"github.com/juju/relationdata/exchange"
)

// Exchanger is the engine surface the notifier drives.
type Exchanger interface {
	Role() relation.Role
	Phase(ctx context.Context, relationID int) (relation.Phase, error)
	Fetch(ctx context.Context, relationID int, fieldNames ...string) (map[string]string, error)
	ComputeDiff(ctx context.Context, relationID int) (exchange.Diff, error)
	RefreshSecret(ctx context.Context, relationID int, group coresecrets.SecretGroup) (map[string]string, error)
}

// NotifierConfig holds the dependencies of a Notifier.
type NotifierConfig struct {
	Hub       *pubsub.SimpleHub
	Exchanger Exchanger
	Logger    Logger
}

// Validate returns an error if the config cannot be used.
func (config NotifierConfig) Validate() error {
	if config.Hub == nil {
		return errors.NotValidf("nil Hub")
	}
	if config.Exchanger == nil {
		return errors.NotValidf("nil Exchanger")
	}
	if config.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	return nil
}

// Notifier inspects the relation an event arrived on and publishes a
// relation data event on the hub when, and only when, the event is
// meaningful to this side of the exchange. Unchanged data and events
// on relations that are not ready yet publish nothing.
type Notifier struct {
	hub       *pubsub.SimpleHub
	exchanger Exchanger
	logger    Logger
}

// NewNotifier returns a Notifier for the supplied config.
func NewNotifier(config NotifierConfig) (*Notifier, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &Notifier{
		hub:       config.Hub,
		exchanger: config.Exchanger,
		logger:    config.Logger,
	}, nil
}

// HandleRelationChanged processes a change to the peer's half of the
// identified relation. The change is diffed against the last observed
// state; an empty diff publishes nothing.
func (n *Notifier) HandleRelationChanged(ctx context.Context, relationID int) error {
	diff, err := n.exchanger.ComputeDiff(ctx, relationID)
	if err != nil {
		return errors.Trace(err)
	}
	if diff.IsEmpty() {
		n.logger.Debugf("no effective change on relation %d", relationID)
		return nil
	}
	if n.exchanger.Role() == relation.Provider {
		n.hub.Publish(RequestedTopic, RequestedChange{
			RelationID: relationID,
			Diff:       diff,
		})
		return nil
	}
	return errors.Trace(n.publishIfReady(ctx, relationID))
}

// HandleSecretChanged processes a new revision of the secret holding
// the identified group on the identified relation. The local pin is
// moved to the latest revision; a requirer then re-publishes the
// connection data so consumers see the rotated values.
func (n *Notifier) HandleSecretChanged(ctx context.Context, relationID int, group coresecrets.SecretGroup) error {
	if _, err := n.exchanger.RefreshSecret(ctx, relationID, group); err != nil {
		return errors.Trace(err)
	}
	if n.exchanger.Role() == relation.Provider {
		return nil
	}
	return errors.Trace(n.publishIfReady(ctx, relationID))
}

// HandleRelationBroken processes the departure of the identified
// relation.
func (n *Notifier) HandleRelationBroken(ctx context.Context, relationID int) error {
	n.hub.Publish(GoneTopic, GoneChange{RelationID: relationID})
	return nil
}

// publishIfReady publishes the resolved connection data for the
// relation, unless the exchange has not completed yet.
func (n *Notifier) publishIfReady(ctx context.Context, relationID int) error {
	phase, err := n.exchanger.Phase(ctx, relationID)
	if err != nil {
		return errors.Trace(err)
	}
	if !phase.IsReady() {
		n.logger.Debugf("relation %d is %s, not publishing", relationID, phase)
		return nil
	}
	data, err := n.exchanger.Fetch(ctx, relationID)
	if err != nil {
		return errors.Trace(err)
	}
	n.hub.Publish(ChangedTopic, ConnectionChange{
		RelationID: relationID,
		Data:       data,
	})
	return nil
}
