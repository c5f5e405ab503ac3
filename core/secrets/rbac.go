// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

package secrets

// SecretRole is an access role on a secret.
type SecretRole string

const (
	RoleNone   = SecretRole("")
	RoleView   = SecretRole("view")
	RoleManage = SecretRole("manage")
)

// Allowed reports whether the role covers the requested role.
func (r SecretRole) Allowed(wanted SecretRole) bool {
	if r == RoleManage {
		return true
	}
	return r == wanted
}
