// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

package secrets

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/juju/errors"
)

// SecretValue holds the value of a secret revision:
// a flat mapping of keys to string values, with no nesting.
type SecretValue interface {
	// EncodedValues returns the key values of a secret as
	// the base64 encoded strings used on the wire.
	EncodedValues() map[string]string

	// Values returns the key values of a secret as strings.
	Values() (map[string]string, error)

	// KeyValue returns the specified secret value for the key.
	// If the key has a #base64 suffix, the encoded value is returned.
	KeyValue(key string) (string, error)

	// IsEmpty checks if the value is empty.
	IsEmpty() bool

	// Checksum is the checksum of the secret content.
	Checksum() (string, error)
}

type secretValue struct {
	// data holds the key values of a secret.
	// All maps are base64 encoded.
	data map[string]string
}

// NewSecretValue returns a secret using the specified map of values.
// The map values are assumed to be already base64 encoded.
func NewSecretValue(data map[string]string) SecretValue {
	dataCopy := make(map[string]string, len(data))
	for k, v := range data {
		dataCopy[k] = v
	}
	return &secretValue{data: dataCopy}
}

// NewSecretBytes returns a secret using the specified map of value bytes.
func NewSecretBytes(data map[string][]byte) SecretValue {
	dataCopy := make(map[string]string, len(data))
	for k, v := range data {
		dataCopy[k] = base64.StdEncoding.EncodeToString(v)
	}
	return &secretValue{data: dataCopy}
}

// NewSecretStrings returns a secret using the specified map of raw,
// unencoded string values.
func NewSecretStrings(data map[string]string) SecretValue {
	dataCopy := make(map[string]string, len(data))
	for k, v := range data {
		dataCopy[k] = base64.StdEncoding.EncodeToString([]byte(v))
	}
	return &secretValue{data: dataCopy}
}

// EncodedValues implements SecretValue.
func (v secretValue) EncodedValues() map[string]string {
	dataCopy := make(map[string]string, len(v.data))
	for k, val := range v.data {
		dataCopy[k] = val
	}
	return dataCopy
}

// Values implements SecretValue.
func (v secretValue) Values() (map[string]string, error) {
	dataCopy := v.EncodedValues()
	for k, val := range dataCopy {
		data, err := base64.StdEncoding.DecodeString(val)
		if err != nil {
			return nil, errors.Trace(err)
		}
		dataCopy[k] = string(data)
	}
	return dataCopy, nil
}

// KeyValue implements SecretValue.
func (v secretValue) KeyValue(key string) (string, error) {
	useBase64 := false
	if strings.HasSuffix(key, base64Suffix) {
		key = strings.TrimSuffix(key, base64Suffix)
		useBase64 = true
	}
	val, ok := v.data[key]
	if !ok {
		return "", errors.NotFoundf("secret key value %q", key)
	}
	if useBase64 {
		return val, nil
	}
	data, err := base64.StdEncoding.DecodeString(val)
	if err != nil {
		return "", errors.Trace(err)
	}
	return string(data), nil
}

const base64Suffix = "#base64"

// IsEmpty implements SecretValue.
func (v secretValue) IsEmpty() bool {
	return len(v.data) == 0
}

// Checksum implements SecretValue.
func (v secretValue) Checksum() (string, error) {
	data, err := json.Marshal(v.EncodedValues())
	if err != nil {
		return "", errors.Trace(err)
	}
	hash := sha256.New()
	hash.Write(data)
	return fmt.Sprintf("%x", hash.Sum(nil)), nil
}
