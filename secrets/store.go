// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

// Package secrets mediates between the exchange engine and the secret
// service holding the actual payloads. It layers a process-lifetime
// cache over a Store, resolving secrets by their deterministic labels.
package secrets

import (
	"context"

	"github.com/juju/names/v5"

	coresecrets "github.com/juju/relationdata/core/secrets"
)

// Store is implemented by secret services able to hold relation
// secret payloads. The memory and vault providers implement it.
type Store interface {
	// Create stores a new secret with the given label and content,
	// owned by owner, and returns its URI.
	Create(ctx context.Context, label string, value coresecrets.SecretValue, owner names.Tag) (*coresecrets.URI, error)

	// Lookup resolves a label to the URI of the secret carrying it.
	Lookup(ctx context.Context, label string) (*coresecrets.URI, error)

	// Get returns the content of a secret. refresh asks the store to
	// start tracking the latest revision for this consumer; peek
	// reads the latest revision without tracking it.
	Get(ctx context.Context, uri *coresecrets.URI, label string, refresh, peek bool) (coresecrets.SecretValue, error)

	// Update replaces the content of the secret, creating a new
	// revision.
	Update(ctx context.Context, uri *coresecrets.URI, value coresecrets.SecretValue) error

	// SetLabel stamps label onto an existing secret so later lookups
	// by label succeed.
	SetLabel(ctx context.Context, uri *coresecrets.URI, label string) error

	// Grant gives the named application view access to the secret.
	Grant(ctx context.Context, uri *coresecrets.URI, application string) error

	// Remove deletes the secret and all its revisions.
	Remove(ctx context.Context, uri *coresecrets.URI) error
}
