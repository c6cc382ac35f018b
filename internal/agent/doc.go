// Package agent implements the Agent Registry component.
//
// The registry:
//   - Owns all agent identity and reputation state (in-memory, process lifetime)
//   - Recomputes level and unlocked capabilities on every experience award
//   - Enforces validator staking and delegation policy
//   - Serializes streak transitions so concurrent epoch settlements
//     cannot lose updates
//
// Delegation back-references are kept as a relation (agent id -> set of
// delegator ids) owned by the registry, never as edges on the records.
package agent
