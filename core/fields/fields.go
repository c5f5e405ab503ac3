// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

// Package fields defines the reserved field names of the exchange
// protocol and the pure logic that partitions a field set into plain
// fields and secret groups.
package fields

import (
	"encoding/json"
	"strings"

	"github.com/juju/collections/set"
	"github.com/juju/errors"

	"github.com/juju/relationdata/core/secrets"
)

// Reserved field names of the wire contract. These never carry backend
// payload and are stripped from assembled connection data.
const (
	// Version holds the provider's schema version, stringified.
	Version = "version"

	// RequestedSecrets holds a JSON array of field names the requirer
	// expects to receive as secrets.
	RequestedSecrets = "requested-secrets"

	// ProvidedSecrets holds a JSON array of field names the provider
	// has published as secrets.
	ProvidedSecrets = "provided-secrets"

	// Snapshot is the field in a replica's own namespace holding the
	// JSON snapshot used by the change detector.
	Snapshot = "data"

	// SecretRefPrefix marks a secret-reference field; the value of
	// such a field is a secret URI rather than a payload.
	SecretRefPrefix = "secret-"
)

// SecretRef returns the namespace field name that carries the secret
// URI for the given group, e.g. "secret-user".
func SecretRef(group secrets.SecretGroup) string {
	return SecretRefPrefix + string(group)
}

// IsSecretRef reports whether name is a secret-reference field.
func IsSecretRef(name string) bool {
	return strings.HasPrefix(name, SecretRefPrefix)
}

// RefGroup extracts the secret group named by a secret-reference
// field; ok is false if name is not a secret-reference field.
func RefGroup(name string) (secrets.SecretGroup, bool) {
	if !IsSecretRef(name) {
		return "", false
	}
	return secrets.SecretGroup(name[len(SecretRefPrefix):]), true
}

// IsProtocol reports whether name is protocol bookkeeping rather than
// backend payload.
func IsProtocol(name string) bool {
	switch name {
	case Version, RequestedSecrets, ProvidedSecrets:
		return true
	}
	return false
}

// groupMap batches well-known credential fields into shared secret
// groups so that, say, username and password travel in one secret.
var groupMap = map[string]secrets.SecretGroup{
	"username":        secrets.GroupUser,
	"password":        secrets.GroupUser,
	"uris":            secrets.GroupUser,
	"tls":             secrets.GroupTLS,
	"tls-ca":          secrets.GroupTLS,
	"entity-name":     secrets.GroupEntity,
	"entity-password": secrets.GroupEntity,
}

// Group returns the secret group a secret-classified field belongs to.
// A contract override wins over the static map; fields in neither fall
// into the extra catch-all group.
func Group(field string, overrides map[string]secrets.SecretGroup) secrets.SecretGroup {
	if group, ok := overrides[field]; ok {
		return group
	}
	if group, ok := groupMap[field]; ok {
		return group
	}
	return secrets.GroupExtra
}

// Classification is the result of partitioning a field set for one
// read or write.
type Classification struct {
	// Plain holds the fields written to, or read from, the namespace
	// directly.
	Plain []string

	// Secret holds the secret-classified fields batched by group.
	Secret map[secrets.SecretGroup][]string
}

// Classify partitions names into plain fields and secret groups.
// secretFields is the effective set of secret-classified names for
// this call; when it is empty every field is plain (the caller has
// already applied any fallback rule). Input order is preserved within
// each bucket.
func Classify(names []string, secretFields set.Strings, overrides map[string]secrets.SecretGroup) Classification {
	result := Classification{
		Secret: make(map[secrets.SecretGroup][]string),
	}
	for _, name := range names {
		if secretFields.Contains(name) {
			group := Group(name, overrides)
			result.Secret[group] = append(result.Secret[group], name)
			continue
		}
		result.Plain = append(result.Plain, name)
	}
	return result
}

// EncodeList renders a field-name list in the wire form used by the
// requested-secrets and provided-secrets fields.
func EncodeList(names []string) (string, error) {
	data, err := json.Marshal(names)
	if err != nil {
		return "", errors.Trace(err)
	}
	return string(data), nil
}

// DecodeList parses the wire form written by EncodeList.
func DecodeList(value string) ([]string, error) {
	var names []string
	if err := json.Unmarshal([]byte(value), &names); err != nil {
		return nil, errors.Annotatef(err, "parsing field list %q", value)
	}
	return names, nil
}
