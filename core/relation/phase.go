// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

package relation

// Phase describes how far the two sides of a relation have progressed
// through the data exchange protocol.
type Phase string

const (
	// Uninitialized means the relation exists but the provider has
	// published nothing yet.
	Uninitialized Phase = "uninitialized"

	// InitiatorPublished means the provider has published its schema
	// version (or a legacy marker) but the assembled connection data
	// is still incomplete.
	InitiatorPublished Phase = "initiator-published"

	// Ready means every field the contract requires is present in the
	// assembled connection data.
	Ready Phase = "ready"

	// TornDown means the relation has been removed and its data is
	// no longer reachable.
	TornDown Phase = "torn-down"
)

// IsReady reports whether the phase denotes complete connection data.
func (p Phase) IsReady() bool {
	return p == Ready
}
