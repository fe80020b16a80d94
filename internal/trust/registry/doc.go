// Package registry houses the on-chain DID anchor registry client. Agent DID
// documents are hashed and anchored in an EVM smart contract; the credential
// verifier cross-checks the anchor digest and revocation flag before trusting
// a remote verification result. The package supports multiple named chains
// loaded from a YAML definition file and exposes a uniform reader interface
// so higher layers never touch go-ethereum types directly.
package registry
