// Package aggregate holds the pure computations over score snapshots: ordering,
// threshold filtering, grade band distribution and class summaries.
//
// Every function here is deterministic and free of shared state, so callers may
// use them from any goroutine. Inputs are never modified.
package aggregate
