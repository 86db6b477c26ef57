// Package database provides the PostgreSQL connection pool and schema of the simulator.
//
// One database holds both sides of a run:
//   - quotes: the replayed market data (read by feed.PostgresSource)
//   - daily_snapshots, snapshot_trades: settled days (written by writer.SnapshotWriter)
package database
