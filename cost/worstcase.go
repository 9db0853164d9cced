package cost

// Worst-case estimators for fee pre-flight (spec.md §4.5, grounded on
// dashevo/grovedb's worst_case_costs.rs). Each estimator is a pure function
// of declared size bounds; none of them touch a backend.

// EstimateOpenSubtree bounds the cost of locating and loading the root node
// of a subtree of at most maxElementCount elements, each up to maxElementSize
// bytes, keyed by up to maxKeySize bytes.
func EstimateOpenSubtree(maxKeySize, maxElementSize, maxElementCount int) Cost {
	return Cost{
		SeekCount:          1,
		StorageLoadedBytes: uint32(maxKeySize + maxElementSize + nodeOverhead),
		LoadedBytes:        uint32(maxKeySize + maxElementSize + nodeOverhead),
	}
}

// EstimateElementRead bounds a single Get: one seek plus one node load.
func EstimateElementRead(maxKeySize, maxElementSize, maxElementCount int) Cost {
	c := EstimateOpenSubtree(maxKeySize, maxElementSize, maxElementCount)
	return c.AddHashNode(maxKeySize + maxElementSize)
}

// EstimateTreeInsert bounds a single key insertion: worst case the insert
// triggers a rebalance touching O(log maxElementCount) nodes, each rehashed.
func EstimateTreeInsert(maxKeySize, maxElementSize, maxElementCount int) Cost {
	depth := treeHeight(maxElementCount)
	perNode := uint32(maxKeySize + maxElementSize + nodeOverhead)
	return Cost{
		SeekCount:           uint16(depth + 2), // +2 for the up-to-two rotated nodes
		StorageWrittenBytes: perNode * uint32(depth+2),
		StorageLoadedBytes:  perNode * uint32(depth),
		HashNodeCalls:       uint16(depth + 2),
		HashByteCalls:       perNode * uint32(depth+2),
	}
}

// EstimateReferenceInsert bounds inserting a Reference element: the cost of a
// tree insert plus resolving the referenced value once, up to MAX_REF_HOPS
// hops away, each hop being an element read.
func EstimateReferenceInsert(maxKeySize, maxElementSize, maxElementCount int) Cost {
	insert := EstimateTreeInsert(maxKeySize, maxElementSize, maxElementCount)
	hop := EstimateElementRead(maxKeySize, maxElementSize, maxElementCount)
	for i := 0; i < maxRefHops; i++ {
		insert = insert.Add(hop)
	}
	return insert
}

// EstimatePropagation bounds the cost of propagating a single subtree's new
// root hash up through depth ancestors to the top-level root Merkle tree
// (spec.md §4.2): one Tree-element rewrite per ancestor plus one root Merkle
// recomputation over maxElementCount leaves.
func EstimatePropagation(maxKeySize, maxElementSize, maxElementCount, depth int) Cost {
	rewrite := EstimateTreeInsert(maxKeySize, 32+1 /* Tree element: hash + flag */, maxElementCount)
	total := Cost{}
	for i := 0; i < depth; i++ {
		total = total.Add(rewrite)
	}
	rootLeaves := treeHeight(maxElementCount)
	total.HashNodeCalls = addU16(total.HashNodeCalls, uint16(rootLeaves))
	total.HashByteCalls = addU32(total.HashByteCalls, uint32(rootLeaves*64))
	return total
}

const (
	nodeOverhead = 32 /* kv_hash */ + 32 /* node_hash */ + 8 /* link metadata, approx */
	maxRefHops   = 10
)

// treeHeight bounds an AVL tree's height as floor(1.44 * b) + 1, where b is
// the bit length of n (b = ceil(log2(n+1))), which is never below
// ceil(1.44 * log2(n+1)), per spec.md §9.
func treeHeight(n int) int {
	if n <= 0 {
		return 0
	}
	h := 0
	size := 1
	for size <= n {
		size *= 2
		h++
	}
	height := int(1.44*float64(h)) + 1
	return height
}
