// Package engine implements the resumable effect-application engine.
//
// The engine applies an effect to every element of a batch while a
// Notifier watches each batch before and after it runs. Any suspension
// can be interrupted; the run then freezes, its position is stored in a
// Registry, and the caller gets an id that resumes it later.
//
// ARCHITECTURE:
//
// Phase Cycle:
// Every run node goes through five phases in a fixed order:
//  1. FORWARD_NOTIFICATION: the node's Start context goes to the notifier
//  2. FORWARD_RETRIEVAL: the answer is awaited; each context becomes an
//     instruction child
//  3. EFFECT_EXECUTION: each instruction is applied element by element,
//     then an End record is appended under it
//  4. RETRO_NOTIFICATION: each End record goes to the notifier
//  5. RETRO_RETRIEVAL: the answer is awaited; each context becomes a
//     response node under the End record and is driven through its own
//     cycle before the next instruction's retro notification
//
// Execution Tree:
// All contexts of one top-level run live in an append-only arena tree
// (package tree). Run nodes are the root and every response node.
//
//	root ─ instruction ─ completion ─ response ─ instruction ─ ...
//
// Freezing:
// Cancellation, notifier failure, effect failure and quota exhaustion all
// end the same way: a FailureContext describing the exact ResumePoint is
// stored, then a *StoppedError carrying its id is returned. Nested runs
// return that error unchanged.
//
// Resuming:
// ApplyFrom takes the FailureContext, drives the frozen node from its
// ResumePoint, then unwinds towards the root, finishing the remaining
// response siblings and each ancestor's remaining retro phase.
//
// CRITICAL PATTERNS:
//
// Element Granularity:
// Execute points record instruction and element. A resumed run applies
// the failed element again and never one that already succeeded.
//
// Logical Clock:
// Events are stamped with a monotonic sequence from Clock.Next(), never
// with wall-clock time.
//
// Single Flow Per Tree:
// A tree is driven by one goroutine at a time. The Registry is the only
// state shared between calls.
package engine
