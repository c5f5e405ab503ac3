// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

package vault

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/vault/api"
	"github.com/juju/errors"

	"github.com/juju/relationdata/secrets"
)

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *api.ResponseError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusNotFound
	}
	// Sadly we can just get a string from the api.
	return strings.Contains(err.Error(), "no secret found")
}

func maybePermissionDenied(err error) error {
	var apiErr *api.ResponseError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusForbidden {
			return errors.WithType(err, secrets.PermissionDenied)
		}
	}
	return err
}

// isTransient reports whether err is worth retrying: a server-side
// fault or a connection error rather than a caller mistake.
func isTransient(err error) bool {
	var apiErr *api.ResponseError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= http.StatusInternalServerError
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
