// Package ir provides the shared vocabulary of the applier engine.
//
// This package contains value types only. All other internal packages
// import ir; ir imports nothing internal. This keeps the vocabulary the
// foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Phase is a closed, ordered enumeration; RetroRetrieval has no successor
//   - Message distinguishes instructions about to run (Start) from completed ones (End)
//   - NO float types in IR values - element payloads are int64, string, bool
//   - Canonical JSON (RFC 8785) is the only serialization used for digests
//     and trace snapshots
package ir
