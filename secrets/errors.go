// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

package secrets

import (
	"github.com/juju/errors"
)

const (
	// SecretsUnavailable is returned when a secret operation is
	// attempted on a runtime or peer without a secret service.
	SecretsUnavailable = errors.ConstError("secrets unavailable")

	// PermissionDenied is returned when a store operation fails due
	// to a permission issue.
	PermissionDenied = errors.ConstError("permission denied")

	// CannotRefresh is the transient condition raised when a secret
	// is read with refresh semantics by its owner immediately after
	// creation, before the store has a consumer record to advance.
	CannotRefresh = errors.ConstError("cannot refresh secret as owner")
)

// IsCannotRefresh reports whether err denotes the transient
// owner-refresh read race. Callers retry such reads once without
// refresh semantics.
func IsCannotRefresh(err error) bool {
	return errors.Is(err, CannotRefresh)
}
