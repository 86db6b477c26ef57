// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Feed events consumed, by kind
//   - Order outcomes (accepted, filled, rejected, cancelled, expired)
//   - Settlements, by regular or gap
//   - Diff buffer depth and delivered diffs
//   - Account balance and risk ratio
//   - Snapshot writer and Kafka publisher throughput
//
// All recording methods are safe on a nil *Metrics, which records nothing.
package metrics
