// Package epoch implements the Epoch Store component.
//
// The store:
//   - Owns epoch and bet records (in-memory, process lifetime)
//   - Stamps each bet with its frozen weight at submission time
//   - Maintains totalStake incrementally with every append
//   - Serializes all mutations per epoch while keeping epochs independent
//
// The Open -> Closed transition happens exactly once, inside
// BeginSettlement, which makes settlement at-most-once by construction.
package epoch
