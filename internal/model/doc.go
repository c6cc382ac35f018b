// Package model defines shared data types used across the lottery engine.
//
// Conventions:
//   - Amounts: int64 sats (currency smallest unit), never floats
//   - Weights: float64 multiplicative draw-mass factors, always > 0
//   - IDs: uuid strings for epochs/bets/seasons, caller-supplied strings for agents
//
// Ownership follows the store boundaries: the agent registry owns Agent
// records, the epoch store owns Epoch and Bet records. Model values that
// cross a store boundary are copies.
package model
