// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

// Package vault implements a secret store on a Vault KV v2 mount. One
// KV path holds each secret, Vault's native versions serve as the
// revisions, and labels live in the path's custom metadata.
package vault

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"
	"github.com/juju/clock"
	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/names/v5"
	"github.com/juju/retry"

	coresecrets "github.com/juju/relationdata/core/secrets"
	"github.com/juju/relationdata/secrets"
	"github.com/juju/relationdata/secrets/provider"
)

var logger = loggo.GetLogger("relationdata.secrets.vault")

const (
	storeType = "vault"

	retryAttempts = 3
	retryDelay    = 200 * time.Millisecond
)

func init() {
	provider.Register(vaultProvider{})
}

type vaultProvider struct{}

func (vaultProvider) Type() string { return storeType }

func (vaultProvider) NewStore(cfg *provider.StoreConfig) (secrets.Store, error) {
	sc := StoreConfig{}
	sc.Address, _ = cfg.Params["address"].(string)
	sc.Token, _ = cfg.Params["token"].(string)
	sc.MountPath, _ = cfg.Params["mount-path"].(string)
	return NewStore(sc)
}

// StoreConfig holds what is needed to reach a Vault KV v2 mount.
type StoreConfig struct {
	Address   string
	Token     string
	MountPath string
	Clock     clock.Clock
}

// Validate returns an error if the config cannot be used.
func (c StoreConfig) Validate() error {
	if c.Address == "" {
		return errors.NotValidf("empty Address")
	}
	if c.MountPath == "" {
		return errors.NotValidf("empty MountPath")
	}
	return nil
}

// NewStore returns a secrets.Store on the configured mount.
func NewStore(cfg StoreConfig) (secrets.Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	apiCfg := api.DefaultConfig()
	apiCfg.Address = cfg.Address
	client, err := api.NewClient(apiCfg)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.WallClock
	}
	return &vaultStore{
		kv:    &apiKV{client: client, mount: cfg.MountPath},
		clock: clk,
	}, nil
}

// kvClient is the slice of the Vault API the store uses.
type kvClient interface {
	put(ctx context.Context, path string, data map[string]interface{}) error
	get(ctx context.Context, path string) (map[string]interface{}, error)
	getMetadata(ctx context.Context, path string) (map[string]interface{}, error)
	putMetadata(ctx context.Context, path string, custom map[string]interface{}) error
	deleteMetadata(ctx context.Context, path string) error
	list(ctx context.Context) ([]string, error)
}

type apiKV struct {
	client *api.Client
	mount  string
}

func (k *apiKV) put(ctx context.Context, path string, data map[string]interface{}) error {
	_, err := k.client.KVv2(k.mount).Put(ctx, path, data)
	return errors.Trace(err)
}

func (k *apiKV) get(ctx context.Context, path string) (map[string]interface{}, error) {
	s, err := k.client.KVv2(k.mount).Get(ctx, path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if s == nil || s.Data == nil {
		return nil, errors.NotFoundf("secret at %q", path)
	}
	return s.Data, nil
}

func (k *apiKV) getMetadata(ctx context.Context, path string) (map[string]interface{}, error) {
	md, err := k.client.KVv2(k.mount).GetMetadata(ctx, path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return md.CustomMetadata, nil
}

func (k *apiKV) putMetadata(ctx context.Context, path string, custom map[string]interface{}) error {
	err := k.client.KVv2(k.mount).PutMetadata(ctx, path, api.KVMetadataPutInput{
		CustomMetadata: custom,
	})
	return errors.Trace(err)
}

func (k *apiKV) deleteMetadata(ctx context.Context, path string) error {
	return errors.Trace(k.client.KVv2(k.mount).DeleteMetadata(ctx, path))
}

func (k *apiKV) list(ctx context.Context) ([]string, error) {
	s, err := k.client.Logical().ListWithContext(ctx, k.mount+"/metadata")
	if err != nil {
		return nil, errors.Trace(err)
	}
	if s == nil || s.Data == nil {
		return nil, nil
	}
	raw, _ := s.Data["keys"].([]interface{})
	paths := make([]string, 0, len(raw))
	for _, entry := range raw {
		if path, ok := entry.(string); ok {
			paths = append(paths, path)
		}
	}
	return paths, nil
}

type vaultStore struct {
	kv    kvClient
	clock clock.Clock
}

// Create implements secrets.Store.
func (s *vaultStore) Create(ctx context.Context, label string, value coresecrets.SecretValue, owner names.Tag) (*coresecrets.URI, error) {
	uri := coresecrets.NewURI()
	err := s.withRetry(ctx, func() error {
		return s.kv.put(ctx, uri.ID, encodeContent(value))
	})
	if err != nil {
		return nil, errors.Trace(maybePermissionDenied(err))
	}
	err = s.withRetry(ctx, func() error {
		return s.kv.putMetadata(ctx, uri.ID, map[string]interface{}{
			"label": label,
			"owner": owner.String(),
		})
	})
	if err != nil {
		return nil, errors.Trace(maybePermissionDenied(err))
	}
	logger.Debugf("created secret %s at %s with label %q", uri, uri.ID, label)
	return uri, nil
}

// Lookup implements secrets.Store. Vault keeps no label index, so the
// mount's metadata is scanned.
func (s *vaultStore) Lookup(ctx context.Context, label string) (*coresecrets.URI, error) {
	var paths []string
	err := s.withRetry(ctx, func() error {
		var err error
		paths, err = s.kv.list(ctx)
		return err
	})
	if err != nil {
		return nil, errors.Trace(maybePermissionDenied(err))
	}
	for _, path := range paths {
		custom, err := s.kv.getMetadata(ctx, path)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, errors.Trace(maybePermissionDenied(err))
		}
		if custom["label"] == label {
			return &coresecrets.URI{ID: path}, nil
		}
	}
	return nil, errors.NotFoundf("secret with label %q", label)
}

// Get implements secrets.Store. Vault always serves the latest
// version; per-consumer revision tracking is the platform secret
// service's concern, so refresh and peek are read-latest here.
func (s *vaultStore) Get(ctx context.Context, uri *coresecrets.URI, label string, refresh, peek bool) (coresecrets.SecretValue, error) {
	if uri == nil {
		var err error
		if uri, err = s.Lookup(ctx, label); err != nil {
			return nil, errors.Trace(err)
		}
	}
	var data map[string]interface{}
	err := s.withRetry(ctx, func() error {
		var err error
		data, err = s.kv.get(ctx, uri.ID)
		return err
	})
	if err != nil {
		if isNotFound(err) {
			return nil, errors.NotFoundf("secret %q", uri)
		}
		return nil, errors.Trace(maybePermissionDenied(err))
	}
	return decodeContent(data), nil
}

// Update implements secrets.Store; the put makes a new KV version.
func (s *vaultStore) Update(ctx context.Context, uri *coresecrets.URI, value coresecrets.SecretValue) error {
	err := s.withRetry(ctx, func() error {
		return s.kv.put(ctx, uri.ID, encodeContent(value))
	})
	if err != nil {
		if isNotFound(err) {
			return errors.NotFoundf("secret %q", uri)
		}
		return errors.Trace(maybePermissionDenied(err))
	}
	return nil
}

// SetLabel implements secrets.Store.
func (s *vaultStore) SetLabel(ctx context.Context, uri *coresecrets.URI, label string) error {
	return errors.Trace(s.mergeMetadata(ctx, uri, "label", label))
}

// Grant implements secrets.Store. Vault access control lives in
// policy; the grant is recorded in the path's metadata for operators
// to audit and mirror.
func (s *vaultStore) Grant(ctx context.Context, uri *coresecrets.URI, application string) error {
	custom, err := s.readMetadata(ctx, uri)
	if err != nil {
		return errors.Trace(err)
	}
	readers := set.NewStrings()
	if existing, ok := custom["read"].(string); ok && existing != "" {
		readers = set.NewStrings(strings.Split(existing, ",")...)
	}
	readers.Add(application)
	return errors.Trace(s.mergeMetadata(ctx, uri, "read", strings.Join(readers.SortedValues(), ",")))
}

// Remove implements secrets.Store; deleting the metadata destroys
// every version.
func (s *vaultStore) Remove(ctx context.Context, uri *coresecrets.URI) error {
	err := s.withRetry(ctx, func() error {
		return s.kv.deleteMetadata(ctx, uri.ID)
	})
	if err != nil {
		if isNotFound(err) {
			return errors.NotFoundf("secret %q", uri)
		}
		return errors.Trace(maybePermissionDenied(err))
	}
	return nil
}

func (s *vaultStore) readMetadata(ctx context.Context, uri *coresecrets.URI) (map[string]interface{}, error) {
	var custom map[string]interface{}
	err := s.withRetry(ctx, func() error {
		var err error
		custom, err = s.kv.getMetadata(ctx, uri.ID)
		return err
	})
	if err != nil {
		if isNotFound(err) {
			return nil, errors.NotFoundf("secret %q", uri)
		}
		return nil, errors.Trace(maybePermissionDenied(err))
	}
	if custom == nil {
		custom = make(map[string]interface{})
	}
	return custom, nil
}

func (s *vaultStore) mergeMetadata(ctx context.Context, uri *coresecrets.URI, key, value string) error {
	custom, err := s.readMetadata(ctx, uri)
	if err != nil {
		return errors.Trace(err)
	}
	custom[key] = value
	err = s.withRetry(ctx, func() error {
		return s.kv.putMetadata(ctx, uri.ID, custom)
	})
	if err != nil {
		return errors.Trace(maybePermissionDenied(err))
	}
	return nil
}

func (s *vaultStore) withRetry(ctx context.Context, op func() error) error {
	err := retry.Call(retry.CallArgs{
		Func:         op,
		IsFatalError: func(err error) bool { return !isTransient(err) },
		Attempts:     retryAttempts,
		Delay:        retryDelay,
		Clock:        s.clock,
		Stop:         ctx.Done(),
	})
	if retry.IsAttemptsExceeded(err) || retry.IsDurationExceeded(err) {
		return retry.LastError(err)
	}
	return err
}

func encodeContent(value coresecrets.SecretValue) map[string]interface{} {
	encoded := value.EncodedValues()
	data := make(map[string]interface{}, len(encoded))
	for k, v := range encoded {
		data[k] = v
	}
	return data
}

func decodeContent(data map[string]interface{}) coresecrets.SecretValue {
	encoded := make(map[string]string, len(data))
	for k, v := range data {
		s, ok := v.(string)
		if !ok {
			s = fmt.Sprintf("%v", v)
		}
		encoded[k] = s
	}
	return coresecrets.NewSecretValue(encoded)
}
