package types

// GenesisDoc is the raw genesis document for chain initialization.
type GenesisDoc struct {
	ChainID       string    `cramberry:"1"`
	GenesisTime   Timestamp `cramberry:"2"`
	InitialHeight uint64    `cramberry:"3"`
	MaxTxBytes    uint64    `cramberry:"4"`
	// DAO genesis state: balances, role holders, engine parameters.
	// YAML (or JSON, which YAML accepts).
	AppState []byte `cramberry:"5"`
}
