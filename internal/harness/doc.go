// Package harness runs engine scenarios described in YAML.
//
// A scenario fixes an input batch, scripts how the notifier answers, plants
// faults in the effect, and lists the Apply and ApplyFrom calls to make.
// Every run uses a fixed run token and a fresh logical clock, so the event
// trace is identical on every execution and can be compared against a
// golden snapshot.
//
// # Scenario Format
//
//	name: effect_failure_resumed
//	description: "A failing element is retried on resume"
//	run_token: run-1            # optional, defaults to "test-run-default"
//	max_steps: 50               # optional step quota per call
//	input: [1, 2, 3]
//	rules:                      # first matching rule answers
//	  - on: start               # start | end
//	    input: [1, 2, 3]        # optional exact match
//	    respond: [[1, 2], [3]]  # instructions (start) or follow-on runs (end)
//	  - on: end
//	    reject: "gone"          # response future fails
//	    times: 1                # optional use limit
//	faults:
//	  - element: 2
//	    error: "boom"           # or interrupt: true
//	steps:
//	  - action: apply
//	    expect: { outcome: EFFECT_FAILURE, phase: EFFECT_EXECUTION }
//	  - action: resume          # failure: <id>, defaults to the latest
//	    expect: { outcome: ok }
//	assertions:
//	  - type: applied
//	    values: [1, 2, 3]
//
// Without a matching rule a start notification answers with its own
// context and an end notification answers with nothing. A rule may
// instead fail the notification itself (fail) or the returned future
// (reject).
//
// # Assertion Types
//
//   - applied: the effect applied exactly values, in order
//   - log_order: entries appear in the call log in order
//   - event_count: exactly count events of kind were recorded
//   - open_failures: count failures remain in the registry
//
// Files are checked against the CUE schema in schema.cue before they are
// decoded, and decoding rejects unknown fields.
package harness
