// Package persist records agent run progress and outcomes. The agent loop
// calls a Recorder at every streaming flush boundary with the current
// response snapshot and once when the run completes or fails.
//
// Two recorders are provided: InMemory for tests and single-process hosts,
// and Redis, which stores the latest snapshot and the final result under
// per-run keys using a JSON or CBOR codec.
package persist
