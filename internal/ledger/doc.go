// Package ledger keeps the single simulated account and its positions.
//
// Accounting rules:
//   - margin = volume × multiplier × price × margin_rate, fixed per lot at open
//   - commission = volume × multiplier × price × commission_rate, charged on fills only
//   - float_profit is measured against the open price, position_profit against the
//     lot's position price (open price today, last settlement price once carried)
//   - balance = pre_balance + close_profit + position_profit − commission
//   - available = balance − margin − frozen_margin
//   - risk_ratio = margin / balance
//
// Closes consume lots FIFO; CLOSETODAY only consumes lots opened today.
package ledger
