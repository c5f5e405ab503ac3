// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

package contract_test

import (
	"github.com/juju/errors"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/juju/relationdata/contract"
	"github.com/juju/relationdata/core/secrets"
)

type ContractSuite struct{}

var _ = gc.Suite(&ContractSuite{})

func (s *ContractSuite) TestValidate(c *gc.C) {
	err := contract.Contract{}.Validate()
	c.Assert(err, jc.ErrorIs, errors.NotValid)

	err = contract.Contract{
		Backend:      "minio",
		SecretFields: []string{"secret-key", "secret-key"},
	}.Validate()
	c.Assert(err, gc.ErrorMatches, `duplicate secret field "secret-key" not valid`)

	err = contract.Contract{Backend: "minio"}.Validate()
	c.Assert(err, jc.ErrorIsNil)
}

func (s *ContractSuite) TestIsSecret(c *gc.C) {
	gcs, err := contract.ForBackend("gcs")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(gcs.IsSecret("secret-key"), jc.IsTrue)
	c.Assert(gcs.IsSecret("bucket"), jc.IsFalse)
}

func (s *ContractSuite) TestGroupFor(c *gc.C) {
	gcs, err := contract.ForBackend("gcs")
	c.Assert(err, jc.ErrorIsNil)
	// Builtin contracts batch each secret field into a group of the
	// same name.
	c.Assert(gcs.GroupFor("secret-key"), gc.Equals, secrets.SecretGroup("secret-key"))
	// Fields outside the contract's map use the static grouping.
	c.Assert(gcs.GroupFor("password"), gc.Equals, secrets.GroupUser)
	c.Assert(gcs.GroupFor("endpoint"), gc.Equals, secrets.GroupExtra)
}

func (s *ContractSuite) TestMissing(c *gc.C) {
	azure, err := contract.ForBackend("azure")
	c.Assert(err, jc.ErrorIsNil)
	missing := azure.Missing(map[string]string{
		"container": "c1",
		"account":   "",
		"protocol":  "https",
	})
	c.Assert(missing, jc.DeepEquals, []string{"account", "secret-key"})

	missing = azure.Missing(map[string]string{
		"container":  "c1",
		"account":    "a1",
		"secret-key": "k1",
		"protocol":   "https",
	})
	c.Assert(missing, gc.HasLen, 0)
}

func (s *ContractSuite) TestBuiltins(c *gc.C) {
	for backend, expected := range map[string]struct {
		required []string
		secret   []string
	}{
		"gcs":   {[]string{"bucket", "secret-key"}, []string{"secret-key"}},
		"s3":    {[]string{"access-key", "secret-key"}, []string{"access-key", "secret-key"}},
		"azure": {[]string{"container", "account", "secret-key", "protocol"}, []string{"secret-key"}},
	} {
		got, err := contract.ForBackend(backend)
		c.Assert(err, jc.ErrorIsNil)
		c.Check(got.RequiredFields, jc.DeepEquals, expected.required, gc.Commentf("backend %q", backend))
		c.Check(got.SecretFields, jc.DeepEquals, expected.secret, gc.Commentf("backend %q", backend))
	}
}

func (s *ContractSuite) TestForBackendNotFound(c *gc.C) {
	_, err := contract.ForBackend("swift")
	c.Assert(err, jc.ErrorIs, errors.NotFound)
	c.Assert(err, gc.ErrorMatches, `contract for backend "swift" not found`)
}

func (s *ContractSuite) TestRegisteredBackends(c *gc.C) {
	backends := contract.RegisteredBackends()
	for _, want := range []string{"azure", "gcs", "s3"} {
		found := false
		for _, got := range backends {
			if got == want {
				found = true
			}
		}
		c.Check(found, jc.IsTrue, gc.Commentf("backend %q", want))
	}
}

func (s *ContractSuite) TestParseContracts(c *gc.C) {
	decls, err := contract.ParseContracts([]byte(`
contracts:
- backend: minio
  required: [bucket, access-key, secret-key]
  secret: [access-key, secret-key]
  groups:
    access-key: access-key
    secret-key: secret-key
  legacy-marker: minio-ready
`))
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(decls, gc.HasLen, 1)
	c.Assert(decls[0], jc.DeepEquals, contract.Contract{
		Backend:        "minio",
		RequiredFields: []string{"bucket", "access-key", "secret-key"},
		SecretFields:   []string{"access-key", "secret-key"},
		FieldGroups: map[string]secrets.SecretGroup{
			"access-key": "access-key",
			"secret-key": "secret-key",
		},
		LegacyMarker: "minio-ready",
	})
}

func (s *ContractSuite) TestParseContractsInvalid(c *gc.C) {
	_, err := contract.ParseContracts([]byte(`
contracts:
- required: [bucket]
`))
	c.Assert(err, jc.ErrorIs, errors.NotValid)

	_, err = contract.ParseContracts([]byte(`{`))
	c.Assert(err, gc.ErrorMatches, "parsing contract declarations: .*")
}
