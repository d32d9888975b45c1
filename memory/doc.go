// Package memory provides the short-term memory store used alongside the
// invocation core. Records are append-only and queried by nearest match: a
// chromem vector index when an embedder is available at construction, and a
// deterministic ranked lexical match otherwise. Which path a store uses is
// fixed for its whole lifetime and reported by IsSemanticEnabled.
//
// Embedders are pluggable; memory/embedder/hash ships a deterministic
// offline implementation suitable for tests and air-gapped operation.
package memory
