// Package store provides SQLite-backed history of flow runs.
//
// Each run is stored twice: the complete RunResult as JSON in runs.result, and
// one step_results row per validated step for querying. Saving a run id that
// already exists replaces the previous record.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Step rows are deleted with their run
//
// Listing orders runs by start time, newest first, with the run id as tie
// breaker so results are stable.
package store
