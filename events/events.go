// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

// Package events turns raw platform hook events into relation data
// events: deduplicated, phase-aware notifications published on a
// process-local hub for charm code to consume.
package events

import (
	"github.com/juju/relationdata/exchange"
)

// Topics on which relation data events are published.
const (
	// RequestedTopic carries RequestedChange values. Only
	// provider-side notifiers publish here.
	RequestedTopic = "relation.requested"

	// ChangedTopic carries ConnectionChange values. Only
	// requirer-side notifiers publish here.
	ChangedTopic = "relation.changed"

	// GoneTopic carries GoneChange values.
	GoneTopic = "relation.gone"
)

// RequestedChange reports that the peer changed its half of a relation
// served by this provider, typically to ask for something.
type RequestedChange struct {
	RelationID int
	Diff       exchange.Diff
}

// ConnectionChange reports that complete connection data is readable
// on a relation consumed by this requirer. Data is the resolved view,
// secrets dereferenced.
type ConnectionChange struct {
	RelationID int
	Data       map[string]string
}

// GoneChange reports that a relation has departed.
type GoneChange struct {
	RelationID int
}
