// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

// Package secrets holds the value types shared by every layer that touches
// secrets: the URI used to identify a secret, the value carried by a
// revision, and the group/label scheme used to batch relation fields into
// secret objects.
package secrets

import (
	"fmt"
	"regexp"
	"time"

	"github.com/juju/errors"
	"github.com/rs/xid"
)

// SecretScheme is the URI scheme for secret identifiers.
const SecretScheme = "secret"

var validSecretID = regexp.MustCompile(`^[0-9a-z]{20}$`)

// URI identifies a secret. The ID is unique across the lifetime of the
// secret; the URI never changes as new revisions are added.
type URI struct {
	ID string
}

// NewURI returns a new secret URI.
func NewURI() *URI {
	return &URI{ID: xid.New().String()}
}

// ParseURI parses the specified string into a URI.
// Both the bare ID and the "secret:" prefixed forms are accepted.
func ParseURI(str string) (*URI, error) {
	id := str
	if n := len(SecretScheme) + 1; len(str) > n && str[:n] == SecretScheme+":" {
		id = str[n:]
	}
	if !validSecretID.MatchString(id) {
		return nil, errors.NotValidf("secret URI %q", str)
	}
	return &URI{ID: id}, nil
}

// String returns the URI in its canonical "secret:<id>" form.
func (u *URI) String() string {
	if u == nil {
		return ""
	}
	return fmt.Sprintf("%s:%s", SecretScheme, u.ID)
}

// SecretGroup batches several logical relation fields into one secret
// object rather than one secret per field.
type SecretGroup string

const (
	// GroupUser carries user credential fields.
	GroupUser SecretGroup = "user"
	// GroupTLS carries transport security fields.
	GroupTLS SecretGroup = "tls"
	// GroupEntity carries managed entity credential fields.
	GroupEntity SecretGroup = "entity"
	// GroupExtra is the catch-all for fields without a dedicated group.
	GroupExtra SecretGroup = "extra"
)

// Label derives the deterministic secret label for this group on the
// given relation. Labels are collision-free across relations and groups
// without needing a persisted mapping table.
func (g SecretGroup) Label(relationName string, relationID int) string {
	return fmt.Sprintf("%s.%d.%s", relationName, relationID, g)
}

// SecretMetadata holds metadata about a secret.
type SecretMetadata struct {
	// URI identifies the secret.
	URI *URI

	// Label is the locally assigned name for the secret,
	// empty until one has been stamped on.
	Label string

	// LatestRevision is the most recent revision of the secret content.
	LatestRevision int

	// CreateTime and UpdateTime are when the secret and its latest
	// revision were written.
	CreateTime time.Time
	UpdateTime time.Time
}
