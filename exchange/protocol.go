// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

package exchange

import (
	"context"
	"strconv"

	"github.com/juju/errors"

	"github.com/juju/relationdata/contract"
	"github.com/juju/relationdata/core/fields"
	"github.com/juju/relationdata/core/life"
	"github.com/juju/relationdata/core/relation"
)

// PublishSchemaVersion writes the provider's schema version onto the
// relation. This is the transition after which payload writes are
// permitted; the version a provider publishes never changes for the
// lifetime of the relation.
func (e *Engine) PublishSchemaVersion(ctx context.Context, relationID int) error {
	if e.role != relation.Provider {
		return errors.NotSupportedf("publishing schema version as %q", e.role)
	}
	leader, err := e.isLeader()
	if err != nil {
		return errors.Trace(err)
	}
	if !leader {
		logger.Errorf("%s is not leader of %s, refusing to publish schema version on relation %d", e.unit, e.app, relationID)
		return nil
	}
	if _, err := e.channel.Relation(ctx, relationID); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(e.channel.WriteApplication(ctx, relationID, e.app, map[string]string{
		fields.Version: strconv.Itoa(int(contract.CurrentVersion)),
	}))
}

// RequestSecrets declares the contract's secret fields as consumable
// by this requirer. A runtime that cannot hold secrets declares
// nothing, steering the provider into the plain-field fallback.
func (e *Engine) RequestSecrets(ctx context.Context, relationID int) error {
	if e.role != relation.Requirer {
		return errors.NotSupportedf("requesting secrets as %q", e.role)
	}
	leader, err := e.isLeader()
	if err != nil {
		return errors.Trace(err)
	}
	if !leader {
		logger.Errorf("%s is not leader of %s, refusing to request secrets on relation %d", e.unit, e.app, relationID)
		return nil
	}
	if _, err := e.channel.Relation(ctx, relationID); err != nil {
		return errors.Trace(err)
	}
	if e.cache == nil {
		logger.Debugf("runtime does not support secrets, not requesting any on relation %d", relationID)
		return nil
	}
	if len(e.contract.SecretFields) == 0 {
		return nil
	}
	encoded, err := fields.EncodeList(e.contract.SecretFields)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(e.channel.WriteApplication(ctx, relationID, e.app, map[string]string{
		fields.RequestedSecrets: encoded,
	}))
}

// IsProtocolReady reports whether the provider has begun publishing on
// the relation: its schema version, or a recognized legacy marker, is
// present. Legacy peers are re-detected on every call, so a provider
// upgraded mid-relation is picked up without restarting anything.
func (e *Engine) IsProtocolReady(ctx context.Context, relationID int) (bool, error) {
	rel, err := e.channel.Relation(ctx, relationID)
	if err != nil {
		return false, errors.Trace(err)
	}
	raw, err := e.providerNamespace(ctx, relationID, rel)
	if err != nil {
		return false, errors.Trace(err)
	}
	return contract.DetectSchemaVersion(raw, e.contract).Initiated(), nil
}

// MissingFields returns the contract's required fields not yet
// readable on the relation, in contract order. Fields delivered plain
// under the fallback rule count as present just like secret-routed
// ones.
func (e *Engine) MissingFields(ctx context.Context, relationID int) ([]string, error) {
	rel, err := e.channel.Relation(ctx, relationID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	raw, err := e.providerNamespace(ctx, relationID, rel)
	if err != nil {
		return nil, errors.Trace(err)
	}
	have, err := e.connectionInfo(ctx, rel, raw, nil)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return e.contract.Missing(have), nil
}

// Phase reports how far the exchange on the relation has progressed.
// Removal of the relation is a phase, not an error, and a relation
// that was Ready regresses to InitiatorPublished if a required field
// is withdrawn.
func (e *Engine) Phase(ctx context.Context, relationID int) (relation.Phase, error) {
	rel, err := e.channel.Relation(ctx, relationID)
	if errors.Is(err, errors.NotFound) {
		return relation.TornDown, nil
	} else if err != nil {
		return "", errors.Trace(err)
	}
	if rel.Life == life.Dead {
		return relation.TornDown, nil
	}
	raw, err := e.providerNamespace(ctx, relationID, rel)
	if err != nil {
		return "", errors.Trace(err)
	}
	if !contract.DetectSchemaVersion(raw, e.contract).Initiated() {
		return relation.Uninitialized, nil
	}
	have, err := e.connectionInfo(ctx, rel, raw, nil)
	if err != nil {
		return "", errors.Trace(err)
	}
	if len(e.contract.Missing(have)) > 0 {
		return relation.InitiatorPublished, nil
	}
	return relation.Ready, nil
}

// providerNamespace returns the provider side's application namespace,
// where protocol readiness is declared.
func (e *Engine) providerNamespace(ctx context.Context, relationID int, rel relation.Relation) (map[string]string, error) {
	app := rel.Other(e.app)
	if e.role == relation.Provider {
		app = e.app
	}
	raw, err := e.channel.ReadApplication(ctx, relationID, app)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return raw, nil
}
