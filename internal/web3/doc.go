// Package web3 houses the chain-facing primitives used by the daily cycle:
// the Client capability surface (balances, view calls, contract invocation,
// confirmation waits) and the per-account Signer that produces transaction
// options and EIP-191 personal-message signatures. Concrete RPC clients live
// in sub-packages such as web3/ethereum.
package web3
