// Package model defines the shared data types of the trade simulator.
//
// Conventions:
//   - Prices and money: float64 in quote currency
//   - A price <= 0 on a Quote means the side is absent (limit up / limit down)
//   - Volumes: int64 lots
//   - Timestamps: time.Time; trading days are dates at midnight in the calendar's zone
//
// Every value handed to a consumer is a copy; the simulator never shares mutable
// state through these types.
package model
