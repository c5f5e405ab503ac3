// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

/*
Package core exists to hold the concepts and pure logic of relation data
exchange: relation identity and phase, secret URIs and values, the reserved
field vocabulary. Code here is shared by every other package and must stay
dependency-light.

When adding to core:

  - it's fine to import from any subpackage of "github.com/juju/relationdata/core"
  - but never import from any *other* subpackage of "github.com/juju/relationdata"
  - anything touching a secret backend, a platform channel, or leadership
    belongs a level up, not here
  - no mutable global state
*/
package core
