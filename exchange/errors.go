// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

package exchange

import (
	"github.com/juju/errors"
)

const (
	// PrematureAccess describes a payload write attempted before the
	// schema version (or a legacy marker) has been published on the
	// relation, while the peer may still read a half-written
	// namespace.
	PrematureAccess = errors.ConstError("premature access to relation data")
)
