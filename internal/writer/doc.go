// Package writer persists and mirrors simulator output.
//
// Writers:
//   - Snapshot writer (PostgreSQL): one daily_snapshots row per settled
//     trading day plus one snapshot_trades row per trade of that day
//   - Kafka publisher: mirrors every delivered diff to a topic, keyed by
//     the diff key so one entity always lands on one partition
//
// Writers are append-only (never update, only insert). Money is stored as
// NUMERIC, rounded to MoneyPlaces decimal places.
package writer
