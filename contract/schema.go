// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

package contract

import (
	"fmt"
	"strconv"

	"github.com/juju/relationdata/core/fields"
)

// SchemaVersion is the protocol schema version an application
// publishes as its first write on a relation.
type SchemaVersion int

const (
	// CurrentVersion is the schema version this library publishes.
	CurrentVersion SchemaVersion = 1

	// VersionFloor is the lowest version treated as fully capable;
	// peers below it take the legacy paths.
	VersionFloor SchemaVersion = 1
)

// PeerSchema classifies the peer behind one observed namespace. Peers
// upgrade mid-relation, so the classification is recomputed on every
// read and never cached.
type PeerSchema struct {
	// Version is the published schema version; zero when absent or
	// unparseable.
	Version SchemaVersion

	// VersionPresent is true when the version field carries a value,
	// whatever that value is.
	VersionPresent bool

	// MarkerPresent is true when the contract's legacy marker field
	// carries a value.
	MarkerPresent bool

	// Legacy is true when the peer wrote data but predates schema
	// versioning, or published a version below VersionFloor.
	Legacy bool
}

// Initiated reports whether the peer has published its initiator
// field: the version field, or the legacy marker for older peers.
func (s PeerSchema) Initiated() bool {
	return s.VersionPresent || s.MarkerPresent
}

// DetectSchemaVersion classifies the peer that wrote the given
// namespace against the contract.
func DetectSchemaVersion(namespace map[string]string, c Contract) PeerSchema {
	var result PeerSchema
	if c.LegacyMarker != "" && namespace[c.LegacyMarker] != "" {
		result.MarkerPresent = true
	}
	raw := namespace[fields.Version]
	if raw == "" {
		result.Legacy = result.MarkerPresent || hasPayload(namespace, c)
		return result
	}
	result.VersionPresent = true
	v, err := strconv.Atoi(raw)
	if err != nil {
		result.Legacy = true
		return result
	}
	result.Version = SchemaVersion(v)
	result.Legacy = result.Version < VersionFloor
	return result
}

// hasPayload reports whether the namespace holds anything beyond
// protocol bookkeeping and the contract's marker field.
func hasPayload(namespace map[string]string, c Contract) bool {
	for name, value := range namespace {
		if value == "" {
			continue
		}
		if fields.IsProtocol(name) || name == fields.Snapshot || name == c.LegacyMarker {
			continue
		}
		return true
	}
	return false
}

// ApplyLegacyShim rewrites connection data read from a legacy peer so
// modern callers see a uniform field set: the marker field is removed
// and the derived identifier is synthesized from the relation id when
// the peer has not supplied one.
func (c Contract) ApplyLegacyShim(relationID int, data map[string]string) {
	if c.LegacyMarker != "" {
		delete(data, c.LegacyMarker)
	}
	if c.DerivedIdentifier == "" {
		return
	}
	if _, ok := data[c.DerivedIdentifier]; !ok {
		data[c.DerivedIdentifier] = fmt.Sprintf("relation-%d", relationID)
	}
}
