// Package poller implements the progress poller.
//
// The poller:
//   - Samples dispatcher statistics on a fixed interval (default: 10s)
//   - Derives the replay rate in feed events per second
//   - Logs one progress line per sample and hands samples to an optional handler
package poller
