package registry

import "context"

// ChainSnapshot represents summarized network metadata for diagnostics.
type ChainSnapshot struct {
	ChainID     string
	BlockNumber string
	Notes       string
}

// Anchor captures the on-chain state of a DID document anchor.
type Anchor struct {
	Digest    [32]byte
	Revoked   bool
	UpdatedAt uint64
}

// Exists reports whether the anchor has ever been written.
func (a Anchor) Exists() bool {
	return a.Digest != [32]byte{}
}

// AnchorReader defines the common interface any chain implementation must
// provide so the credential verifier can interact with different networks
// uniformly.
type AnchorReader interface {
	AnchorOf(ctx context.Context, did string) (Anchor, error)
	FetchChainSnapshot(ctx context.Context) (ChainSnapshot, error)
	Close()
}
