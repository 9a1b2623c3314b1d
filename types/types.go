// Package types defines the wire types shared by the DAO application,
// its transports and its engines.
//
// These are plain Go structs with cramberry struct tags for
// deterministic binary serialization. Persisted engine state follows the
// same rule, so nothing that reaches the app hash is a Go map.
package types

// Hash is a 32-byte cryptographic hash.
type Hash [32]byte

// AppHash is a deterministic fingerprint of the application
// state after execution.
type AppHash [32]byte

// Tx is an opaque transaction as carried by the engine. The DAO decodes
// it as an Envelope.
type Tx []byte

// QueryPath selects what a StateQuery reads (e.g. "/staking/stake").
type QueryPath string

// BlockID uniquely identifies a point in the chain.
type BlockID struct {
	Height uint64 `cramberry:"1"`
	Hash   Hash   `cramberry:"2"`
}
