// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

// Package memory provides an in-memory secret store faithful to the
// platform's ownership, grant and revision-tracking semantics. Tests
// and deployments without an external backend use it.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/names/v5"

	coresecrets "github.com/juju/relationdata/core/secrets"
	"github.com/juju/relationdata/secrets"
	"github.com/juju/relationdata/secrets/provider"
)

const storeType = "memory"

func init() {
	provider.Register(memoryProvider{})
}

type memoryProvider struct{}

func (memoryProvider) Type() string { return storeType }

// NewStore returns a client acting as the application named by the
// "application" parameter, on the backing passed as "backing" or a
// fresh one.
func (memoryProvider) NewStore(cfg *provider.StoreConfig) (secrets.Store, error) {
	app, _ := cfg.Params["application"].(string)
	if app == "" {
		return nil, errors.NotValidf("memory store config without application")
	}
	backing, _ := cfg.Params["backing"].(*Backing)
	if backing == nil {
		backing = NewBacking(clock.WallClock)
	}
	return backing.ClientFor(app), nil
}

type entry struct {
	uri    *coresecrets.URI
	label  string
	owner  string
	grants set.Strings

	// revisions holds every content write, oldest first; revision
	// numbers are 1-based indexes into it.
	revisions []coresecrets.SecretValue

	// tracked pins each consumer application to the revision it last
	// refreshed to.
	tracked map[string]int

	// consumerLabels holds the label each consumer application has
	// stamped for itself; the two sides of a relation may know the
	// same secret under different labels.
	consumerLabels map[string]string

	createTime time.Time
	updateTime time.Time
}

func (e *entry) roleFor(application string) coresecrets.SecretRole {
	switch {
	case application == e.owner:
		return coresecrets.RoleManage
	case e.grants.Contains(application):
		return coresecrets.RoleView
	}
	return coresecrets.RoleNone
}

// Backing is the shared state of one simulated model's secret
// service; the clients created for each application share it.
type Backing struct {
	clock clock.Clock

	mu            sync.Mutex
	entries       map[string]*entry
	refreshFaults int
}

// NewBacking returns an empty backing stamping times from clk.
func NewBacking(clk clock.Clock) *Backing {
	return &Backing{clock: clk, entries: make(map[string]*entry)}
}

// ClientFor returns a store acting as the given application.
func (b *Backing) ClientFor(application string) secrets.Store {
	return &client{backing: b, app: application}
}

// InjectRefreshFault makes the next n owner refresh reads fail the
// way the platform can when a content read chases a creation.
func (b *Backing) InjectRefreshFault(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshFaults = n
}

// RevisionCount returns the number of revisions held for the secret;
// each content write makes exactly one revision.
func (b *Backing) RevisionCount(uri *coresecrets.URI) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[uri.ID]
	if !ok {
		return 0, errors.NotFoundf("secret %q", uri)
	}
	return len(e.revisions), nil
}

// Metadata returns the secret's metadata.
func (b *Backing) Metadata(uri *coresecrets.URI) (*coresecrets.SecretMetadata, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[uri.ID]
	if !ok {
		return nil, errors.NotFoundf("secret %q", uri)
	}
	return &coresecrets.SecretMetadata{
		URI:            e.uri,
		Label:          e.label,
		LatestRevision: len(e.revisions),
		CreateTime:     e.createTime,
		UpdateTime:     e.updateTime,
	}, nil
}

type client struct {
	backing *Backing
	app     string
}

// Create implements secrets.Store.
func (c *client) Create(_ context.Context, label string, value coresecrets.SecretValue, owner names.Tag) (*coresecrets.URI, error) {
	if owner.Kind() != names.ApplicationTagKind || owner.Id() != c.app {
		return nil, errors.Annotatef(secrets.PermissionDenied, "cannot create secret owned by %q", owner)
	}
	b := c.backing
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.entries {
		if e.label == label && e.owner == c.app {
			return nil, errors.AlreadyExistsf("secret with label %q", label)
		}
	}
	now := b.clock.Now()
	uri := coresecrets.NewURI()
	b.entries[uri.ID] = &entry{
		uri:            uri,
		label:          label,
		owner:          c.app,
		grants:         set.NewStrings(),
		revisions:      []coresecrets.SecretValue{value},
		tracked:        make(map[string]int),
		consumerLabels: make(map[string]string),
		createTime:     now,
		updateTime:     now,
	}
	return uri, nil
}

// Lookup implements secrets.Store.
func (c *client) Lookup(_ context.Context, label string) (*coresecrets.URI, error) {
	b := c.backing
	b.mu.Lock()
	defer b.mu.Unlock()
	e, err := c.find(nil, label)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return e.uri, nil
}

// Get implements secrets.Store. Owners always read the latest
// revision; consumers read their tracked revision, advancing it on
// refresh and seeing the latest without advancing on peek.
func (c *client) Get(_ context.Context, uri *coresecrets.URI, label string, refresh, peek bool) (coresecrets.SecretValue, error) {
	b := c.backing
	b.mu.Lock()
	defer b.mu.Unlock()
	e, err := c.find(uri, label)
	if err != nil {
		return nil, errors.Trace(err)
	}
	latest := len(e.revisions)
	if e.owner == c.app {
		if refresh && b.refreshFaults > 0 {
			b.refreshFaults--
			return nil, errors.Annotatef(secrets.CannotRefresh, "secret %q", e.label)
		}
		return e.revisions[latest-1], nil
	}
	rev, ok := e.tracked[c.app]
	if refresh || !ok {
		rev = latest
		e.tracked[c.app] = rev
	}
	if peek {
		rev = latest
	}
	return e.revisions[rev-1], nil
}

// Update implements secrets.Store.
func (c *client) Update(_ context.Context, uri *coresecrets.URI, value coresecrets.SecretValue) error {
	b := c.backing
	b.mu.Lock()
	defer b.mu.Unlock()
	e, err := c.manage(uri)
	if err != nil {
		return errors.Trace(err)
	}
	e.revisions = append(e.revisions, value)
	e.updateTime = b.clock.Now()
	return nil
}

// SetLabel implements secrets.Store. The owner renames the secret
// itself; a consumer with view access records its own label, which
// only its later lookups see.
func (c *client) SetLabel(_ context.Context, uri *coresecrets.URI, label string) error {
	b := c.backing
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[uri.ID]
	if !ok {
		return errors.NotFoundf("secret %q", uri)
	}
	switch {
	case e.roleFor(c.app).Allowed(coresecrets.RoleManage):
		e.label = label
		e.updateTime = b.clock.Now()
	case e.roleFor(c.app).Allowed(coresecrets.RoleView):
		e.consumerLabels[c.app] = label
	default:
		return errors.NotFoundf("secret %q", uri)
	}
	return nil
}

// Grant implements secrets.Store.
func (c *client) Grant(_ context.Context, uri *coresecrets.URI, application string) error {
	b := c.backing
	b.mu.Lock()
	defer b.mu.Unlock()
	e, err := c.manage(uri)
	if err != nil {
		return errors.Trace(err)
	}
	e.grants.Add(application)
	return nil
}

// Remove implements secrets.Store.
func (c *client) Remove(_ context.Context, uri *coresecrets.URI) error {
	b := c.backing
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := c.manage(uri); err != nil {
		return errors.Trace(err)
	}
	delete(b.entries, uri.ID)
	return nil
}

// find locates a readable entry; the caller holds the backing mutex.
// Unreadable secrets are reported not found rather than revealing
// their existence.
func (c *client) find(uri *coresecrets.URI, label string) (*entry, error) {
	var found *entry
	if uri != nil {
		found = c.backing.entries[uri.ID]
	} else {
		for _, e := range c.backing.entries {
			if e.label == label || e.consumerLabels[c.app] == label {
				found = e
				break
			}
		}
	}
	if found == nil || !found.roleFor(c.app).Allowed(coresecrets.RoleView) {
		if uri != nil {
			return nil, errors.NotFoundf("secret %q", uri)
		}
		return nil, errors.NotFoundf("secret with label %q", label)
	}
	return found, nil
}

// manage locates an entry the client may mutate; the caller holds the
// backing mutex.
func (c *client) manage(uri *coresecrets.URI) (*entry, error) {
	e, ok := c.backing.entries[uri.ID]
	if !ok {
		return nil, errors.NotFoundf("secret %q", uri)
	}
	if !e.roleFor(c.app).Allowed(coresecrets.RoleManage) {
		return nil, errors.Annotatef(secrets.PermissionDenied, "cannot manage secret %q", uri)
	}
	return e, nil
}
