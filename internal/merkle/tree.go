// Package merkle builds binary SHA-256 Merkle trees over file digests and
// produces inclusion proofs against their roots.
//
// Leaves are the file digests themselves. A parent is SHA-256(left || right)
// over the raw 32-byte children. When a level has an odd number of nodes the
// last node is paired with itself.
package merkle

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/persistorai/auditseal/internal/hashing"
)

// ErrNoLeaves is returned when a tree is requested over an empty leaf set.
var ErrNoLeaves = errors.New("merkle tree needs at least one leaf")

// Tree holds every level of a built tree, leaves first.
type Tree struct {
	levels [][]hashing.Digest
}

// Build constructs the tree over leaves in the given order.
func Build(leaves []hashing.Digest) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, ErrNoLeaves
	}

	level := make([]hashing.Digest, len(leaves))
	copy(level, leaves)

	levels := [][]hashing.Digest{level}

	for len(level) > 1 {
		next := make([]hashing.Digest, 0, (len(level)+1)/2)

		for i := 0; i < len(level); i += 2 {
			right := level[i]
			if i+1 < len(level) {
				right = level[i+1]
			}

			next = append(next, hashPair(level[i], right))
		}

		levels = append(levels, next)
		level = next
	}

	return &Tree{levels: levels}, nil
}

// Root is a convenience for Build(leaves).Root().
func Root(leaves []hashing.Digest) (hashing.Digest, error) {
	t, err := Build(leaves)
	if err != nil {
		return hashing.Digest{}, err
	}

	return t.Root(), nil
}

// Root returns the tree root.
func (t *Tree) Root() hashing.Digest {
	return t.levels[len(t.levels)-1][0]
}

// LeafCount returns the number of leaves.
func (t *Tree) LeafCount() int {
	return len(t.levels[0])
}

// Proof returns the inclusion proof for the leaf at index.
func (t *Tree) Proof(index int) (*Proof, error) {
	n := t.LeafCount()
	if index < 0 || index >= n {
		return nil, fmt.Errorf("leaf index %d out of range [0,%d)", index, n)
	}

	p := &Proof{LeafIndex: index, LeafCount: n}

	idx := index
	for _, level := range t.levels[:len(t.levels)-1] {
		var step ProofStep

		if idx%2 == 0 {
			sib := idx + 1
			if sib >= len(level) {
				sib = idx
			}
			step = ProofStep{Hash: level[sib].Hex(), Left: false}
		} else {
			step = ProofStep{Hash: level[idx-1].Hex(), Left: true}
		}

		p.Siblings = append(p.Siblings, step)
		idx /= 2
	}

	return p, nil
}

func hashPair(left, right hashing.Digest) hashing.Digest {
	var buf [2 * hashing.Size]byte
	copy(buf[:hashing.Size], left[:])
	copy(buf[hashing.Size:], right[:])

	return sha256.Sum256(buf[:])
}
