package ledger

import "golang.org/x/crypto/blake2b"

// merkleRoot folds leaf hashes bottom-up into a single root. An odd node at
// any level is paired with itself, so the root is defined for every count
// greater than zero. Interior nodes are domain-separated from leaves with a
// one-byte prefix to rule out second-preimage tricks between levels.
func merkleRoot(leaves [][32]byte) [32]byte {
	if len(leaves) == 0 {
		return [32]byte{}
	}

	level := make([][32]byte, len(leaves))
	copy(level, leaves)

	for len(level) > 1 {
		next := make([][32]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, hashPair(left, right))
		}
		level = next
	}
	return level[0]
}

func hashPair(left, right [32]byte) [32]byte {
	buf := make([]byte, 1, 1+2*32)
	buf[0] = 0x01 // interior-node prefix
	buf = append(buf, left[:]...)
	buf = append(buf, right[:]...)
	return blake2b.Sum256(buf)
}
