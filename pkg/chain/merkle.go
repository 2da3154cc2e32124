package chain

// ComputeMerkleRoot folds the ordered transaction hashes into a single root
// digest. Returns nil iff the block carries no transactions; an odd node at
// any level is paired with itself.
func ComputeMerkleRoot(txHashes []string) *string {
	if len(txHashes) == 0 {
		return nil
	}

	level := make([]string, len(txHashes))
	copy(level, txHashes)

	for len(level) > 1 {
		next := make([]string, 0, (len(level)+1)/2)

		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left
			if i+1 < len(level) {
				right = level[i+1]
			}

			next = append(next, digestHex([]byte(left+right)))
		}

		level = next
	}

	root := level[0]
	return &root
}
