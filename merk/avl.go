package merk

import "bytes"

// insert inserts or overwrites key/valueHash rooted at curKey (nil for an
// empty subtree), returning the new subtree root key. Rotation selection is
// deterministic by height comparison, ties broken to the right (spec.md
// §4.1).
func (m *Merk) insert(curKey []byte, key []byte, valueHash [32]byte) ([]byte, error) {
	if curKey == nil {
		n := &Node{Key: append([]byte(nil), key...), ValueHash: valueHash}
		n.rehash(m.hasher)
		m.putNode(n)
		return n.Key, nil
	}

	cur, err := m.loadNode(curKey)
	if err != nil {
		return nil, err
	}

	switch c := bytes.Compare(key, cur.Key); {
	case c == 0:
		cur.ValueHash = valueHash
		cur.rehash(m.hasher)
		m.putNode(cur)
		return cur.Key, nil

	case c < 0:
		newLeftKey, err := m.insert(linkChildKey(cur.Left), key, valueHash)
		if err != nil {
			return nil, err
		}
		leftNode, err := m.loadNode(newLeftKey)
		if err != nil {
			return nil, err
		}
		cur.Left = leftNode.selfLink()
		cur.rehash(m.hasher)
		m.putNode(cur)
		return m.rebalance(cur)

	default:
		newRightKey, err := m.insert(linkChildKey(cur.Right), key, valueHash)
		if err != nil {
			return nil, err
		}
		rightNode, err := m.loadNode(newRightKey)
		if err != nil {
			return nil, err
		}
		cur.Right = rightNode.selfLink()
		cur.rehash(m.hasher)
		m.putNode(cur)
		return m.rebalance(cur)
	}
}

func linkChildKey(l *Link) []byte {
	if l == nil {
		return nil
	}
	return l.Key
}

// remove deletes key from the subtree rooted at curKey, returning the new
// subtree root key (nil if the subtree becomes empty) and whether the key
// was found.
func (m *Merk) remove(curKey []byte, key []byte) ([]byte, bool, error) {
	if curKey == nil {
		return nil, false, nil
	}
	cur, err := m.loadNode(curKey)
	if err != nil {
		return nil, false, err
	}

	switch c := bytes.Compare(key, cur.Key); {
	case c < 0:
		newLeftKey, found, err := m.remove(linkChildKey(cur.Left), key)
		if err != nil || !found {
			return curKey, found, err
		}
		cur.Left = m.selfLinkOrNil(newLeftKey)
		cur.rehash(m.hasher)
		m.putNode(cur)
		newRoot, err := m.rebalance(cur)
		return newRoot, true, err

	case c > 0:
		newRightKey, found, err := m.remove(linkChildKey(cur.Right), key)
		if err != nil || !found {
			return curKey, found, err
		}
		cur.Right = m.selfLinkOrNil(newRightKey)
		cur.rehash(m.hasher)
		m.putNode(cur)
		newRoot, err := m.rebalance(cur)
		return newRoot, true, err

	default:
		m.removeNode(cur.Key)
		if cur.Left == nil && cur.Right == nil {
			return nil, true, nil
		}
		if cur.Left == nil {
			return cur.Right.Key, true, nil
		}
		if cur.Right == nil {
			return cur.Left.Key, true, nil
		}
		// Two children: promote the in-order successor (left-most of the
		// right subtree), per spec.md §4.1.
		succKey, err := m.leftmost(cur.Right.Key)
		if err != nil {
			return nil, false, err
		}
		succ, err := m.loadNode(succKey)
		if err != nil {
			return nil, false, err
		}
		newRightKey, _, err := m.remove(cur.Right.Key, succ.Key)
		if err != nil {
			return nil, false, err
		}
		replacement := &Node{Key: succ.Key, ValueHash: succ.ValueHash, Left: cur.Left, Right: m.selfLinkOrNil(newRightKey)}
		replacement.rehash(m.hasher)
		m.putNode(replacement)
		newRoot, err := m.rebalance(replacement)
		return newRoot, true, err
	}
}

func (m *Merk) selfLinkOrNil(key []byte) *Link {
	if key == nil {
		return nil
	}
	n, err := m.loadNode(key)
	if err != nil {
		return nil
	}
	return n.selfLink()
}

func (m *Merk) leftmost(key []byte) ([]byte, error) {
	cur := key
	for {
		n, err := m.loadNode(cur)
		if err != nil {
			return nil, err
		}
		if n.Left == nil {
			return n.Key, nil
		}
		cur = n.Left.Key
	}
}

// rebalance restores the AVL invariant at n, performing at most one of the
// four rotations (LL, LR, RR, RL), and returns the (possibly new) subtree
// root key. Only n and the nodes directly involved in a rotation are
// rewritten (spec.md §4.1: "no other node is touched").
func (m *Merk) rebalance(n *Node) ([]byte, error) {
	balance := n.balanceFactor()
	if balance >= -1 && balance <= 1 {
		return n.Key, nil
	}

	if balance > 1 {
		left, err := m.loadNode(n.Left.Key)
		if err != nil {
			return nil, err
		}
		if left.balanceFactor() < 0 {
			// LR case: rotate left child left, then rotate n right.
			newLeftKey, err := m.rotateLeft(left)
			if err != nil {
				return nil, err
			}
			newLeft, err := m.loadNode(newLeftKey)
			if err != nil {
				return nil, err
			}
			n.Left = newLeft.selfLink()
			n.rehash(m.hasher)
			m.putNode(n)
		}
		return m.rotateRight(n)
	}

	// balance < -1
	right, err := m.loadNode(n.Right.Key)
	if err != nil {
		return nil, err
	}
	if right.balanceFactor() > 0 {
		// RL case: rotate right child right, then rotate n left.
		newRightKey, err := m.rotateRight(right)
		if err != nil {
			return nil, err
		}
		newRight, err := m.loadNode(newRightKey)
		if err != nil {
			return nil, err
		}
		n.Right = newRight.selfLink()
		n.rehash(m.hasher)
		m.putNode(n)
	}
	return m.rotateLeft(n)
}

// rotateLeft performs a left rotation around n (RR case), promoting n's
// right child, and returns the new subtree root key.
func (m *Merk) rotateLeft(n *Node) ([]byte, error) {
	pivot, err := m.loadNode(n.Right.Key)
	if err != nil {
		return nil, err
	}
	n.Right = linkOrNil(pivot.Left)
	n.rehash(m.hasher)
	m.putNode(n)

	pivot.Left = n.selfLink()
	pivot.rehash(m.hasher)
	m.putNode(pivot)

	return pivot.Key, nil
}

// rotateRight performs a right rotation around n (LL case), promoting n's
// left child, and returns the new subtree root key.
func (m *Merk) rotateRight(n *Node) ([]byte, error) {
	pivot, err := m.loadNode(n.Left.Key)
	if err != nil {
		return nil, err
	}
	n.Left = linkOrNil(pivot.Right)
	n.rehash(m.hasher)
	m.putNode(n)

	pivot.Right = n.selfLink()
	pivot.rehash(m.hasher)
	m.putNode(pivot)

	return pivot.Key, nil
}

func linkOrNil(l *Link) *Link {
	if l == nil {
		return nil
	}
	cp := *l
	return &cp
}
