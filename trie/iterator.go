package trie

// Each walks every (key, value) pair reachable from the current root, in
// ascending key order, resolving hash nodes against the backing store as
// needed. It does not mark anything touched: this is a read-only walk,
// used by migration to re-materialize one trie's contents into another.
func (t *ResolvableTrie) Each(fn func(key, value []byte) error) error {
	return t.eachNode(t.root, nil, fn)
}

func (t *ResolvableTrie) eachNode(n node, prefix []byte, fn func(key, value []byte) error) error {
	switch n := n.(type) {
	case nil:
		return nil
	case valueNode:
		return fn(hexToKeybytes(prefix), []byte(n))
	case *shortNode:
		return t.eachNode(n.Val, append(prefix, n.Key...), fn)
	case *fullNode:
		// The value slot holds the key that ends at this branch, which
		// sorts before every key continuing through a child.
		if child := n.Children[16]; child != nil {
			if err := t.eachNode(child, append(prefix, terminatorByte), fn); err != nil {
				return err
			}
		}
		for i, child := range n.Children[:16] {
			if child == nil {
				continue
			}
			if err := t.eachNode(child, append(prefix, byte(i)), fn); err != nil {
				return err
			}
		}
		return nil
	case hashNode:
		resolved, err := t.resolveHash(n)
		if err != nil {
			return err
		}
		return t.eachNode(resolved, prefix, fn)
	default:
		return nil
	}
}

// Each walks every (key, value) pair reachable from the engine's current
// root, in ascending key order.
func (e *Engine) Each(fn func(key, value []byte) error) error {
	return e.rt.Each(fn)
}
