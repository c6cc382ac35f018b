// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable
// interpolation. Every policy table the engine consumes (levels, tiers,
// fees, weight multipliers, XP awards, topics) lives here so deployments
// can retune the lottery without touching the draw logic.
package config
