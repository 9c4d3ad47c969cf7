// Package testutil holds deterministic stand-ins for time, identity and
// effects so engine runs can be replayed and compared byte for byte.
package testutil
