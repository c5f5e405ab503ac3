// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

// Package exchange implements the relation data exchange engine: the
// read/write surface a charmed application uses to trade connection
// data with its peer over a relation, routing sensitive fields through
// user secrets and falling back to plain fields when a peer cannot
// consume them.
package exchange

import (
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/names/v5"

	"github.com/juju/relationdata/contract"
	"github.com/juju/relationdata/core/relation"
	"github.com/juju/relationdata/secrets"
)

var logger = loggo.GetLogger("relationdata.exchange")

// Config holds the dependencies and identity of an Engine.
type Config struct {
	// Channel is the platform's relation data surface.
	Channel Channel

	// Store gives access to the runtime's secret service. A nil
	// Store means the runtime cannot hold secrets; exchanges then
	// only succeed with peers that accept plain fields.
	Store secrets.Store

	// Contract names the fields exchanged over relations served by
	// this engine and which of them are sensitive.
	Contract contract.Contract

	// Role is the side of the exchange this application plays.
	Role relation.Role

	// LocalUnit is the unit this engine runs on, e.g. "minio/0".
	LocalUnit string

	// Leadership reports whether LocalUnit leads its application.
	Leadership LeadershipChecker
}

// Validate returns an error if the config cannot be used.
func (config Config) Validate() error {
	if config.Channel == nil {
		return errors.NotValidf("nil Channel")
	}
	if config.Leadership == nil {
		return errors.NotValidf("nil Leadership")
	}
	if err := config.Role.Validate(); err != nil {
		return errors.Trace(err)
	}
	if err := config.Contract.Validate(); err != nil {
		return errors.Trace(err)
	}
	if !names.IsValidUnit(config.LocalUnit) {
		return errors.NotValidf("unit name %q", config.LocalUnit)
	}
	return nil
}

// Engine exchanges relation data on behalf of one side of a relation.
// All methods may be called concurrently; the engine itself is
// stateless apart from its secret cache, so several engines on the
// same unit see each other's writes through the channel.
type Engine struct {
	channel    Channel
	cache      *secrets.Cache
	contract   contract.Contract
	role       relation.Role
	unit       string
	app        string
	leadership LeadershipChecker
}

// NewEngine returns an Engine for the supplied config.
func NewEngine(config Config) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	app, err := names.UnitApplication(config.LocalUnit)
	if err != nil {
		return nil, errors.Trace(err)
	}
	e := &Engine{
		channel:    config.Channel,
		contract:   config.Contract,
		role:       config.Role,
		unit:       config.LocalUnit,
		app:        app,
		leadership: config.Leadership,
	}
	if config.Store != nil {
		e.cache = secrets.NewCache(config.Store, names.NewApplicationTag(app))
	}
	return e, nil
}

// SecretsSupported reports whether the runtime backing this engine can
// hold secrets.
func (e *Engine) SecretsSupported() bool {
	return e.cache != nil
}

// Role returns the side of the exchange this engine plays.
func (e *Engine) Role() relation.Role {
	return e.role
}

// isLeader reports whether this unit may write the application
// namespace.
func (e *Engine) isLeader() (bool, error) {
	ok, err := e.leadership.IsLeader()
	if err != nil {
		return false, errors.Trace(err)
	}
	return ok, nil
}
