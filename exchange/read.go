// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

package exchange

import (
	"context"

	"github.com/juju/errors"

	"github.com/juju/relationdata/contract"
	"github.com/juju/relationdata/core/fields"
	"github.com/juju/relationdata/core/relation"
	coresecrets "github.com/juju/relationdata/core/secrets"
	"github.com/juju/relationdata/secrets"
)

// Fetch returns the peer application's data on the relation, with
// sensitive fields resolved from their secrets and protocol
// bookkeeping hidden. With no field names it returns everything the
// peer published; otherwise only the named fields. Fields the peer has
// not published are simply absent from the result.
func (e *Engine) Fetch(ctx context.Context, relationID int, fieldNames ...string) (map[string]string, error) {
	rel, err := e.channel.Relation(ctx, relationID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	raw, err := e.channel.ReadApplication(ctx, relationID, rel.Other(e.app))
	if err != nil {
		return nil, errors.Trace(err)
	}
	result, err := e.connectionInfo(ctx, rel, raw, fieldNames)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return result, nil
}

// FetchMine returns this application's own published data on the
// relation, resolved the same way Fetch resolves the peer's.
func (e *Engine) FetchMine(ctx context.Context, relationID int, fieldNames ...string) (map[string]string, error) {
	rel, err := e.channel.Relation(ctx, relationID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	raw, err := e.channel.ReadApplication(ctx, relationID, e.app)
	if err != nil {
		return nil, errors.Trace(err)
	}
	result, err := e.connectionInfo(ctx, rel, raw, fieldNames)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return result, nil
}

// FetchUnit returns the named unit's data on the relation. Unit
// namespaces carry no secrets, so this is a plain read; the engine's
// own snapshot bookkeeping is hidden.
func (e *Engine) FetchUnit(ctx context.Context, relationID int, unit string, fieldNames ...string) (map[string]string, error) {
	if _, err := e.channel.Relation(ctx, relationID); err != nil {
		return nil, errors.Trace(err)
	}
	raw, err := e.channel.ReadUnit(ctx, relationID, unit)
	if err != nil {
		return nil, errors.Trace(err)
	}
	result := make(map[string]string)
	if len(fieldNames) == 0 {
		for name, value := range raw {
			if name == fields.Snapshot || value == "" {
				continue
			}
			result[name] = value
		}
		return result, nil
	}
	for _, name := range fieldNames {
		if value, ok := raw[name]; ok && value != "" {
			result[name] = value
		}
	}
	return result, nil
}

// connectionInfo assembles the resolved view of one application
// namespace: plain payload plus secret content, with protocol fields
// and secret references hidden and the legacy shim applied for peers
// that predate schema versioning.
func (e *Engine) connectionInfo(ctx context.Context, rel relation.Relation, raw map[string]string, fieldNames []string) (map[string]string, error) {
	schema := contract.DetectSchemaVersion(raw, e.contract)
	result := make(map[string]string)
	if len(fieldNames) == 0 {
		for name, value := range raw {
			if value == "" || fields.IsProtocol(name) || fields.IsSecretRef(name) || name == fields.Snapshot {
				continue
			}
			result[name] = value
		}
		for name, value := range raw {
			group, ok := fields.RefGroup(name)
			if !ok || value == "" {
				continue
			}
			content, err := e.resolveSecret(ctx, rel, group, value)
			if errors.Is(err, errors.NotFound) {
				continue
			} else if err != nil {
				return nil, errors.Trace(err)
			}
			for k, v := range content {
				result[k] = v
			}
		}
	} else {
		for _, name := range fieldNames {
			if value, ok := raw[name]; ok && value != "" {
				result[name] = value
				continue
			}
			if !e.contract.IsSecret(name) {
				continue
			}
			group := e.contract.GroupFor(name)
			uriStr := raw[fields.SecretRef(group)]
			if uriStr == "" {
				continue
			}
			content, err := e.resolveSecret(ctx, rel, group, uriStr)
			if errors.Is(err, errors.NotFound) {
				continue
			} else if err != nil {
				return nil, errors.Trace(err)
			}
			if value, ok := content[name]; ok {
				result[name] = value
			}
		}
	}
	if schema.Legacy {
		e.contract.ApplyLegacyShim(rel.ID, result)
	}
	return result, nil
}

// resolveSecret returns the content of the secret holding the given
// group's fields on the relation, preferring the stable label and
// falling back to the published URI.
func (e *Engine) resolveSecret(ctx context.Context, rel relation.Relation, group coresecrets.SecretGroup, uriStr string) (map[string]string, error) {
	if e.cache == nil {
		return nil, errors.Annotatef(secrets.SecretsUnavailable, "reading %q secret on %s", group, rel)
	}
	uri, err := coresecrets.ParseURI(uriStr)
	if err != nil {
		return nil, errors.Trace(err)
	}
	label := group.Label(rel.Name, rel.ID)
	value, err := e.cache.Content(ctx, label, uri, false, false)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return value.Values()
}

// RefreshSecret re-reads the secret holding the given group's fields
// on the relation, advancing this application's tracked revision.
// Callers use it when the platform signals that the secret changed.
func (e *Engine) RefreshSecret(ctx context.Context, relationID int, group coresecrets.SecretGroup) (map[string]string, error) {
	rel, err := e.channel.Relation(ctx, relationID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if e.cache == nil {
		return nil, errors.Annotatef(secrets.SecretsUnavailable, "refreshing %q secret on %s", group, rel)
	}
	remote, err := e.channel.ReadApplication(ctx, relationID, rel.Other(e.app))
	if err != nil {
		return nil, errors.Trace(err)
	}
	var uri *coresecrets.URI
	if uriStr := remote[fields.SecretRef(group)]; uriStr != "" {
		if uri, err = coresecrets.ParseURI(uriStr); err != nil {
			return nil, errors.Trace(err)
		}
	}
	label := group.Label(rel.Name, rel.ID)
	value, err := e.cache.Content(ctx, label, uri, true, false)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return value.Values()
}
