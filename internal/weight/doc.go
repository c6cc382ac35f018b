// Package weight implements the bet weighting policy.
//
// weight = levelMultiplier × confidenceMultiplier × verifiedMultiplier
//
// All multipliers come from configuration tables; tuning a deployment
// never requires touching draw logic.
package weight
