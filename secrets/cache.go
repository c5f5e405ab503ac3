// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

package secrets

import (
	"context"
	"sync"

	"github.com/im7mortal/kmutex"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/names/v5"

	coresecrets "github.com/juju/relationdata/core/secrets"
)

var logger = loggo.GetLogger("relationdata.secrets")

// CachedSecret is one process-lifetime cache entry, keyed by the
// secret's deterministic label. Entries are never persisted; other
// replicas re-resolve via label and URI.
type CachedSecret struct {
	URI   *coresecrets.URI
	Label string

	// lastRead is the content most recently read or written through
	// this cache. Content equality on writes is judged against it.
	lastRead coresecrets.SecretValue
}

// Cache lazily materializes, caches and mutates the secrets of a
// single owning unit. Operations on distinct labels may run
// concurrently; operations on one label are serialized.
type Cache struct {
	store Store
	owner names.Tag

	locks *kmutex.Kmutex

	mu      sync.Mutex
	entries map[string]*CachedSecret
}

// NewCache returns a cache over store for secrets owned by owner.
func NewCache(store Store, owner names.Tag) *Cache {
	return &Cache{
		store:   store,
		owner:   owner,
		locks:   kmutex.New(),
		entries: make(map[string]*CachedSecret),
	}
}

// Get returns the cached secret for label, resolving through the
// store on first access: by label first, then by uri, stamping the
// label onto a secret found by uri so future label lookups succeed.
// The store has no relation index, so the label is the only durable
// link from a relation back to its secrets.
func (c *Cache) Get(ctx context.Context, label string, uri *coresecrets.URI) (*CachedSecret, error) {
	c.locks.Lock(label)
	defer c.locks.Unlock(label)
	return c.resolve(ctx, label, uri)
}

func (c *Cache) resolve(ctx context.Context, label string, uri *coresecrets.URI) (*CachedSecret, error) {
	if entry := c.lookup(label); entry != nil {
		return entry, nil
	}
	found, err := c.store.Lookup(ctx, label)
	if err == nil {
		return c.insert(label, found), nil
	}
	if !errors.Is(err, errors.NotFound) {
		return nil, errors.Trace(err)
	}
	if uri == nil {
		return nil, errors.NotFoundf("secret with label %q", label)
	}
	if err := c.store.SetLabel(ctx, uri, label); err != nil {
		return nil, errors.Trace(err)
	}
	logger.Debugf("stamped label %q onto secret %s", label, uri)
	return c.insert(label, uri), nil
}

// Content returns the content of the secret under label, read through
// the store. refresh and peek carry the Store.Get semantics.
func (c *Cache) Content(ctx context.Context, label string, uri *coresecrets.URI, refresh, peek bool) (coresecrets.SecretValue, error) {
	c.locks.Lock(label)
	defer c.locks.Unlock(label)
	entry, err := c.resolve(ctx, label, uri)
	if err != nil {
		return nil, errors.Trace(err)
	}
	value, err := c.store.Get(ctx, entry.URI, label, refresh, peek)
	if IsCannotRefresh(err) {
		// A freshly minted secret cannot be refresh-read by its
		// owner; read the current revision plainly instead.
		value, err = c.store.Get(ctx, entry.URI, label, false, true)
	}
	if err != nil {
		return nil, errors.Trace(err)
	}
	entry.lastRead = value
	return value, nil
}

// Add creates a new secret under label and grants view access to the
// reader application when it is not the owner itself. It fails with
// AlreadyExists when a secret is already recorded for the label.
func (c *Cache) Add(ctx context.Context, label string, value coresecrets.SecretValue, reader string) (*CachedSecret, error) {
	c.locks.Lock(label)
	defer c.locks.Unlock(label)
	if entry := c.lookup(label); entry != nil {
		return nil, errors.AlreadyExistsf("secret with label %q", label)
	}
	uri, err := c.store.Create(ctx, label, value, c.owner)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if reader != "" && reader != c.owner.Id() {
		if err := c.store.Grant(ctx, uri, reader); err != nil {
			return nil, errors.Trace(err)
		}
	}
	entry := c.insert(label, uri)
	entry.lastRead = value
	logger.Debugf("created secret %s with label %q", uri, label)
	return entry, nil
}

// SetContent replaces the content of the secret under label. Content
// equal to the last value read or written through this cache is not
// rewritten, so a retried update does not mint a spurious revision.
// Empty content removes the secret entirely.
func (c *Cache) SetContent(ctx context.Context, label string, value coresecrets.SecretValue) error {
	c.locks.Lock(label)
	defer c.locks.Unlock(label)
	entry, err := c.resolve(ctx, label, nil)
	if err != nil {
		return errors.Trace(err)
	}
	if value.IsEmpty() {
		return errors.Trace(c.removeEntry(ctx, entry))
	}
	if entry.lastRead == nil {
		current, err := c.store.Get(ctx, entry.URI, label, false, true)
		if err != nil && !errors.Is(err, errors.NotFound) {
			return errors.Trace(err)
		}
		entry.lastRead = current
	}
	if entry.lastRead != nil {
		same, err := contentEqual(entry.lastRead, value)
		if err != nil {
			return errors.Trace(err)
		}
		if same {
			return nil
		}
	}
	if err := c.store.Update(ctx, entry.URI, value); err != nil {
		return errors.Trace(err)
	}
	entry.lastRead = value
	return nil
}

// Remove revokes the secret under label and drops its cache entry. A
// secret already gone is not an error.
func (c *Cache) Remove(ctx context.Context, label string) error {
	c.locks.Lock(label)
	defer c.locks.Unlock(label)
	entry := c.lookup(label)
	if entry == nil {
		uri, err := c.store.Lookup(ctx, label)
		if errors.Is(err, errors.NotFound) {
			return nil
		}
		if err != nil {
			return errors.Trace(err)
		}
		entry = c.insert(label, uri)
	}
	return errors.Trace(c.removeEntry(ctx, entry))
}

func (c *Cache) removeEntry(ctx context.Context, entry *CachedSecret) error {
	err := c.store.Remove(ctx, entry.URI)
	if err != nil && !errors.Is(err, errors.NotFound) {
		return errors.Trace(err)
	}
	if err != nil {
		logger.Debugf("secret %s already gone", entry.URI)
	}
	c.mu.Lock()
	delete(c.entries, entry.Label)
	c.mu.Unlock()
	return nil
}

func (c *Cache) lookup(label string) *CachedSecret {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[label]
}

func (c *Cache) insert(label string, uri *coresecrets.URI) *CachedSecret {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := &CachedSecret{URI: uri, Label: label}
	c.entries[label] = entry
	return entry
}

func contentEqual(a, b coresecrets.SecretValue) (bool, error) {
	aSum, err := a.Checksum()
	if err != nil {
		return false, errors.Trace(err)
	}
	bSum, err := b.Checksum()
	if err != nil {
		return false, errors.Trace(err)
	}
	return aSum == bSum, nil
}
