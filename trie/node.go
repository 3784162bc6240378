// Package trie implements the MPT engine adapter: a Merkle Patricia Trie
// of the Ethereum flavor (hex-nibble keys, Keccak-256 hashing, RLP/compact
// node encoding) opened against a pluggable, get-only backing store.
package trie

// node is the interface implemented by all trie node types.
type node interface {
	// cache returns the cached hash and dirty flag for this node.
	cache() (hashNode, bool)
}

// fullNode is a branch node with 16 children (one per hex nibble) plus an
// optional value. Children[16] is unused except for the value slot.
type fullNode struct {
	Children [17]node
	flags    nodeFlag
}

// shortNode is an extension or leaf node. If the key ends with the
// terminator nibble it is a leaf; otherwise it is an extension node.
type shortNode struct {
	Key   []byte
	Val   node
	flags nodeFlag
}

// hashNode is a 32-byte hash reference to a node stored in the backing
// database rather than held in memory.
type hashNode []byte

// valueNode is raw value data stored in a leaf node.
type valueNode []byte

// nodeFlag contains caching information for a node.
type nodeFlag struct {
	hash  hashNode
	dirty bool
}

func (n *fullNode) cache() (hashNode, bool)  { return n.flags.hash, n.flags.dirty }
func (n *shortNode) cache() (hashNode, bool) { return n.flags.hash, n.flags.dirty }
func (n hashNode) cache() (hashNode, bool)   { return nil, true }
func (n valueNode) cache() (hashNode, bool)  { return nil, true }

func (n *fullNode) copy() *fullNode {
	cp := *n
	return &cp
}

func (n *shortNode) copy() *shortNode {
	cp := *n
	return &cp
}
