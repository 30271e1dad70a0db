// Package remote defines the remote data source consumed by dispatchboard
// stores, plus two implementations.
//
// The main components are:
//
//   - [Source]: list / get-by-id / patch over named collections
//   - [HTTPSource]: client for the dispatch board REST API
//   - [MemorySource]: in-process fixture source with the same semantics
//   - [CallOptions]: per-call testing hooks (artificial delay, forced failure)
//
// Entities travel as plain JSON records. [Source.Patch] performs a shallow
// merge of the provided fields over the stored record and returns the merged
// record. Failures are reported as [*Failure] values carrying a
// human-readable message; a missing entity additionally matches
// [ErrNotFound] via errors.Is.
package remote
