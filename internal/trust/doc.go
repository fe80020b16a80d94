// Package trust defines the data model shared by the MCPF trust framework
// collaborators: agent name resolution (ANS), decentralized identity
// credential verification (DID/VC), and agent-to-agent delegation policy
// checks (A2A). The concrete services live behind HTTP endpoints (and an
// optional on-chain DID anchor registry); this package only carries their
// request and response shapes so the workflow layer never depends on a
// specific transport.
package trust
