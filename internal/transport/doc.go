// Package transport serves the simulator over a websocket and provides a
// client for it.
//
// The protocol is JSON packets with an "aid" field. The client drives the
// stream with peek_message; each peek is answered by exactly one rtn_data
// packet carrying the next batch of diffs. Order and subscription commands
// may be sent at any time and are answered only on error (rtn_error); their
// effects arrive as diffs on a later peek.
package transport
