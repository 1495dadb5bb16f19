package merkle

import (
	"github.com/persistorai/auditseal/internal/hashing"
)

// ProofStep is one sibling on the path from a leaf to the root.
// Left reports whether the sibling sits on the left of the running hash.
type ProofStep struct {
	Hash string `json:"hash"`
	Left bool   `json:"left"`
}

// Proof is an inclusion proof for one leaf.
type Proof struct {
	LeafIndex int         `json:"leaf_index"`
	LeafCount int         `json:"leaf_count"`
	Siblings  []ProofStep `json:"siblings"`
}

// VerifyProof recomputes the root from leaf and proof and compares it to root.
func VerifyProof(leaf hashing.Digest, proof *Proof, root hashing.Digest) bool {
	if proof == nil || proof.LeafIndex < 0 || proof.LeafIndex >= proof.LeafCount {
		return false
	}

	cur := leaf
	for _, step := range proof.Siblings {
		sib, err := hashing.ParseDigest(step.Hash)
		if err != nil {
			return false
		}

		if step.Left {
			cur = hashPair(sib, cur)
		} else {
			cur = hashPair(cur, sib)
		}
	}

	return cur == root
}
