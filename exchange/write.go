// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

package exchange

import (
	"context"
	"sort"

	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/kr/pretty"

	"github.com/juju/relationdata/contract"
	"github.com/juju/relationdata/core/fields"
	"github.com/juju/relationdata/core/relation"
	coresecrets "github.com/juju/relationdata/core/secrets"
	"github.com/juju/relationdata/secrets"
)

// Update merges values into this application's namespace on the
// relation, routing secret-classified fields through user secrets when
// the peer asked for them. Only the leader of the application may
// write the namespace; on any other unit the update is refused
// silently, and logged, so unconditional hook code stays correct on
// followers.
//
// A provider may not write payload before its schema version is on the
// relation: until then the peer cannot tell a half-written namespace
// from a complete one. An update that carries the version field itself
// is exempt, the version landing in the same namespace write as the
// payload.
func (e *Engine) Update(ctx context.Context, relationID int, data map[string]string) error {
	if len(data) == 0 {
		return nil
	}
	leader, err := e.isLeader()
	if err != nil {
		return errors.Trace(err)
	}
	if !leader {
		logger.Errorf("%s is not leader of %s, refusing update of relation %d", e.unit, e.app, relationID)
		return nil
	}
	rel, err := e.channel.Relation(ctx, relationID)
	if err != nil {
		return errors.Trace(err)
	}
	mine, err := e.channel.ReadApplication(ctx, relationID, e.app)
	if err != nil {
		return errors.Trace(err)
	}

	write := make(map[string]string)
	payload := make(map[string]string)
	versionCarried := false
	for name, value := range data {
		if fields.IsProtocol(name) {
			write[name] = value
			if name == fields.Version && value != "" {
				versionCarried = true
			}
			continue
		}
		payload[name] = value
	}
	if e.role == relation.Provider && len(payload) > 0 && !versionCarried {
		if self := contract.DetectSchemaVersion(mine, e.contract); !self.Initiated() {
			return errors.Annotatef(PrematureAccess, "writing payload on %s before the schema version", rel)
		}
	}

	secretFields, err := e.effectiveSecretFields(ctx, relationID, rel)
	if err != nil {
		return errors.Trace(err)
	}
	cls := fields.Classify(sortedNames(payload), secretFields, e.contract.FieldGroups)
	if len(cls.Secret) > 0 && e.cache == nil {
		return errors.Annotatef(secrets.SecretsUnavailable, "writing secret fields on %s", rel)
	}
	logger.Tracef("update of %s: %# v", rel, pretty.Formatter(cls))

	for _, name := range cls.Plain {
		write[name] = payload[name]
	}
	if len(cls.Secret) > 0 {
		provided, err := providedSecrets(mine)
		if err != nil {
			return errors.Trace(err)
		}
		for group, groupFields := range cls.Secret {
			uri, err := e.writeSecret(ctx, rel, group, groupFields, payload, mine)
			if err != nil {
				return errors.Trace(err)
			}
			write[fields.SecretRef(group)] = uri.String()
			provided = provided.Union(set.NewStrings(groupFields...))
		}
		encoded, err := fields.EncodeList(provided.SortedValues())
		if err != nil {
			return errors.Trace(err)
		}
		write[fields.ProvidedSecrets] = encoded
	}
	return errors.Trace(e.channel.WriteApplication(ctx, relationID, e.app, write))
}

// writeSecret creates or updates the secret carrying one group's
// fields, merging the new fields over the current content. The label
// is the durable link from relation to secret, so an existing secret
// is found even when the reference field write of a previous update
// was lost; re-publishing the reference converges the namespace.
func (e *Engine) writeSecret(ctx context.Context, rel relation.Relation, group coresecrets.SecretGroup, groupFields []string, payload, mine map[string]string) (*coresecrets.URI, error) {
	label := group.Label(rel.Name, rel.ID)
	content := make(map[string]string, len(groupFields))
	for _, name := range groupFields {
		content[name] = payload[name]
	}
	var uri *coresecrets.URI
	if uriStr := mine[fields.SecretRef(group)]; uriStr != "" {
		parsed, err := coresecrets.ParseURI(uriStr)
		if err != nil {
			return nil, errors.Trace(err)
		}
		uri = parsed
	}
	entry, err := e.cache.Get(ctx, label, uri)
	if errors.Is(err, errors.NotFound) {
		entry, err = e.cache.Add(ctx, label, coresecrets.NewSecretStrings(content), rel.Other(e.app))
		if err != nil {
			return nil, errors.Trace(err)
		}
		return entry.URI, nil
	} else if err != nil {
		return nil, errors.Trace(err)
	}
	current, err := e.cache.Content(ctx, label, entry.URI, false, false)
	if err != nil {
		return nil, errors.Trace(err)
	}
	merged, err := current.Values()
	if err != nil {
		return nil, errors.Trace(err)
	}
	for name, value := range content {
		merged[name] = value
	}
	if err := e.cache.SetContent(ctx, label, coresecrets.NewSecretStrings(merged)); err != nil {
		return nil, errors.Trace(err)
	}
	return entry.URI, nil
}

// Delete removes the named fields from this application's namespace on
// the relation, removing secret-routed fields from their secrets. A
// group whose secret empties out is revoked and its reference field
// dropped. Like Update, Delete is leader-gated.
func (e *Engine) Delete(ctx context.Context, relationID int, fieldNames ...string) error {
	if len(fieldNames) == 0 {
		return nil
	}
	leader, err := e.isLeader()
	if err != nil {
		return errors.Trace(err)
	}
	if !leader {
		logger.Errorf("%s is not leader of %s, refusing delete on relation %d", e.unit, e.app, relationID)
		return nil
	}
	rel, err := e.channel.Relation(ctx, relationID)
	if err != nil {
		return errors.Trace(err)
	}
	mine, err := e.channel.ReadApplication(ctx, relationID, e.app)
	if err != nil {
		return errors.Trace(err)
	}

	write := make(map[string]string)
	secretGroups := make(map[coresecrets.SecretGroup][]string)
	for _, name := range fieldNames {
		group := e.contract.GroupFor(name)
		if e.contract.IsSecret(name) && mine[fields.SecretRef(group)] != "" {
			secretGroups[group] = append(secretGroups[group], name)
			continue
		}
		write[name] = ""
	}
	if len(secretGroups) > 0 {
		if e.cache == nil {
			return errors.Annotatef(secrets.SecretsUnavailable, "deleting secret fields on %s", rel)
		}
		provided, err := providedSecrets(mine)
		if err != nil {
			return errors.Trace(err)
		}
		for group, groupFields := range secretGroups {
			emptied, err := e.deleteFromSecret(ctx, rel, group, groupFields, mine)
			if err != nil {
				return errors.Trace(err)
			}
			if emptied {
				write[fields.SecretRef(group)] = ""
			}
			provided = provided.Difference(set.NewStrings(groupFields...))
		}
		if provided.IsEmpty() {
			write[fields.ProvidedSecrets] = ""
		} else {
			encoded, err := fields.EncodeList(provided.SortedValues())
			if err != nil {
				return errors.Trace(err)
			}
			write[fields.ProvidedSecrets] = encoded
		}
	}
	return errors.Trace(e.channel.WriteApplication(ctx, relationID, e.app, write))
}

// deleteFromSecret removes fields from the group's secret, revoking
// the secret when nothing remains, and reports whether it was emptied.
func (e *Engine) deleteFromSecret(ctx context.Context, rel relation.Relation, group coresecrets.SecretGroup, groupFields []string, mine map[string]string) (bool, error) {
	label := group.Label(rel.Name, rel.ID)
	uri, err := coresecrets.ParseURI(mine[fields.SecretRef(group)])
	if err != nil {
		return false, errors.Trace(err)
	}
	current, err := e.cache.Content(ctx, label, uri, false, false)
	if errors.Is(err, errors.NotFound) {
		return true, nil
	} else if err != nil {
		return false, errors.Trace(err)
	}
	remaining, err := current.Values()
	if err != nil {
		return false, errors.Trace(err)
	}
	for _, name := range groupFields {
		delete(remaining, name)
	}
	if len(remaining) == 0 {
		if err := e.cache.Remove(ctx, label); err != nil {
			return false, errors.Trace(err)
		}
		return true, nil
	}
	if err := e.cache.SetContent(ctx, label, coresecrets.NewSecretStrings(remaining)); err != nil {
		return false, errors.Trace(err)
	}
	return false, nil
}

// UpdateUnit merges values into this unit's own namespace on the
// relation. Unit namespaces are not leader-gated.
func (e *Engine) UpdateUnit(ctx context.Context, relationID int, data map[string]string) error {
	if len(data) == 0 {
		return nil
	}
	if _, err := e.channel.Relation(ctx, relationID); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(e.channel.WriteUnit(ctx, relationID, e.unit, data))
}

// DeleteUnit removes the named fields from this unit's own namespace
// on the relation.
func (e *Engine) DeleteUnit(ctx context.Context, relationID int, fieldNames ...string) error {
	if len(fieldNames) == 0 {
		return nil
	}
	if _, err := e.channel.Relation(ctx, relationID); err != nil {
		return errors.Trace(err)
	}
	values := make(map[string]string, len(fieldNames))
	for _, name := range fieldNames {
		values[name] = ""
	}
	return errors.Trace(e.channel.WriteUnit(ctx, relationID, e.unit, values))
}

// effectiveSecretFields returns the set of fields secret-routed on the
// relation right now. The requirer declares the fields it can consume
// as secrets; fields outside that declaration, and everything when the
// declaration is absent, travel plain. The declaration is re-read on
// every write, so a peer upgraded mid-relation is honoured without
// restarting anything.
func (e *Engine) effectiveSecretFields(ctx context.Context, relationID int, rel relation.Relation) (set.Strings, error) {
	if e.role != relation.Provider {
		return nil, nil
	}
	peer := rel.Other(e.app)
	raw, err := e.channel.ReadApplication(ctx, relationID, peer)
	if err != nil {
		return nil, errors.Trace(err)
	}
	declared := raw[fields.RequestedSecrets]
	if declared == "" {
		return nil, nil
	}
	requested, err := fields.DecodeList(declared)
	if err != nil {
		logger.Warningf("malformed %s from %q on relation %d: %v", fields.RequestedSecrets, peer, relationID, err)
		return nil, nil
	}
	result := set.NewStrings()
	for _, name := range requested {
		if e.contract.IsSecret(name) {
			result.Add(name)
		}
	}
	return result, nil
}

// providedSecrets parses the application's own provided-secrets field.
func providedSecrets(mine map[string]string) (set.Strings, error) {
	raw := mine[fields.ProvidedSecrets]
	if raw == "" {
		return set.NewStrings(), nil
	}
	names, err := fields.DecodeList(raw)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return set.NewStrings(names...), nil
}

func sortedNames(m map[string]string) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
