// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

package contract

import (
	"github.com/juju/relationdata/core/secrets"
)

// The builtin object-storage contracts. Each maps its secret fields to
// groups of the same name, so the URI field for a gcs secret-key is
// secret-secret-key.
func init() {
	Register(Contract{
		Backend:           "gcs",
		RequiredFields:    []string{"bucket", "secret-key"},
		SecretFields:      []string{"secret-key"},
		FieldGroups:       eponymousGroups("secret-key"),
		LegacyMarker:      "gcs-ready",
		DerivedIdentifier: "identifier",
	})
	Register(Contract{
		Backend:           "s3",
		RequiredFields:    []string{"access-key", "secret-key"},
		SecretFields:      []string{"access-key", "secret-key"},
		FieldGroups:       eponymousGroups("access-key", "secret-key"),
		LegacyMarker:      "s3-ready",
		DerivedIdentifier: "identifier",
	})
	Register(Contract{
		Backend:           "azure",
		RequiredFields:    []string{"container", "account", "secret-key", "protocol"},
		SecretFields:      []string{"secret-key"},
		FieldGroups:       eponymousGroups("secret-key"),
		LegacyMarker:      "azure-ready",
		DerivedIdentifier: "identifier",
	})
}

func eponymousGroups(names ...string) map[string]secrets.SecretGroup {
	groups := make(map[string]secrets.SecretGroup, len(names))
	for _, name := range names {
		groups[name] = secrets.SecretGroup(name)
	}
	return groups
}
