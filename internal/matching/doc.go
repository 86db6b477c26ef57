// Package matching decides whether a resting order fills against a quote.
//
// Matching is against the top of book only, never against other orders:
//   - LIMIT BUY fills when the ask is at or below the limit price, LIMIT SELL when
//     the bid is at or above it; the fill price is always the limit price.
//   - ANY (market) orders fill immediately at the opposite-side price or are rejected.
//   - Every fill consumes the order's full remaining volume.
package matching
