// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

// Package contract records, per backend type, which fields a relation
// must carry and which of them travel as secrets, together with the
// schema negotiation rules used to interoperate with peers running
// older protocol versions.
package contract

import (
	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"gopkg.in/yaml.v3"

	"github.com/juju/relationdata/core/fields"
	"github.com/juju/relationdata/core/secrets"
)

// Contract is the static declaration of one backend type's field set.
// Contracts are immutable once registered.
type Contract struct {
	// Backend names the backend type, e.g. "s3".
	Backend string `yaml:"backend"`

	// RequiredFields must all be present before the connection data
	// for a relation is considered complete.
	RequiredFields []string `yaml:"required"`

	// SecretFields names the fields that travel inside secrets rather
	// than in the plain namespace, peer capability permitting.
	SecretFields []string `yaml:"secret,omitempty"`

	// FieldGroups overrides the static field grouping for individual
	// secret fields. Builtin object-storage contracts map each secret
	// field to a group of the same name.
	FieldGroups map[string]secrets.SecretGroup `yaml:"groups,omitempty"`

	// LegacyMarker names the bookkeeping field pre-versioning
	// providers wrote as their first field. Its presence makes the
	// relation protocol-ready for such peers, and it is stripped from
	// assembled connection data.
	LegacyMarker string `yaml:"legacy-marker,omitempty"`

	// DerivedIdentifier names a field modern providers publish that
	// legacy peers predate; when a legacy peer is detected the engine
	// synthesizes its value from the relation id.
	DerivedIdentifier string `yaml:"derived-identifier,omitempty"`
}

// Validate returns an error if the contract cannot be used.
func (c Contract) Validate() error {
	if c.Backend == "" {
		return errors.NotValidf("contract with empty backend")
	}
	seen := set.NewStrings()
	for _, field := range c.SecretFields {
		if seen.Contains(field) {
			return errors.NotValidf("duplicate secret field %q", field)
		}
		seen.Add(field)
	}
	return nil
}

// IsSecret reports whether the contract classifies field as secret.
func (c Contract) IsSecret(field string) bool {
	for _, f := range c.SecretFields {
		if f == field {
			return true
		}
	}
	return false
}

// GroupFor returns the secret group that carries field.
func (c Contract) GroupFor(field string) secrets.SecretGroup {
	return fields.Group(field, c.FieldGroups)
}

// Missing returns the required fields absent from the assembled
// connection data, in contract order. An empty value counts as absent;
// the exchange channel cannot represent nulls.
func (c Contract) Missing(have map[string]string) []string {
	var missing []string
	for _, field := range c.RequiredFields {
		if have[field] == "" {
			missing = append(missing, field)
		}
	}
	return missing
}

// ParseContracts reads contract declarations from YAML:
//
//	contracts:
//	- backend: minio
//	  required: [bucket, access-key, secret-key]
//	  secret: [access-key, secret-key]
//	  groups:
//	    access-key: access-key
//	    secret-key: secret-key
func ParseContracts(data []byte) ([]Contract, error) {
	var doc struct {
		Contracts []Contract `yaml:"contracts"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Annotate(err, "parsing contract declarations")
	}
	for _, c := range doc.Contracts {
		if err := c.Validate(); err != nil {
			return nil, errors.Trace(err)
		}
	}
	return doc.Contracts, nil
}
