// Package hashing computes the SHA-256 digests that every integrity
// artifact of the pipeline is built on.
package hashing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/persistorai/auditseal/internal/models"
)

// Size is the byte length of a digest.
const Size = sha256.Size

// Digest is a raw SHA-256 digest.
type Digest [Size]byte

// Hex returns the lowercase hex encoding of d.
func (d Digest) Hex() string { return hex.EncodeToString(d[:]) }

// String implements fmt.Stringer.
func (d Digest) String() string { return d.Hex() }

// ParseDigest decodes a 64-character hex digest.
func ParseDigest(s string) (Digest, error) {
	var d Digest

	b, err := hex.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("decoding digest: %w", err)
	}

	if len(b) != Size {
		return d, fmt.Errorf("digest must be %d bytes, got %d", Size, len(b))
	}

	copy(d[:], b)

	return d, nil
}

// SumBytes hashes an in-memory buffer.
func SumBytes(b []byte) Digest {
	return sha256.Sum256(b)
}

// Sum streams r through SHA-256 and returns the digest and the number of bytes read.
func Sum(r io.Reader) (Digest, int64, error) {
	var d Digest

	h := sha256.New()

	n, err := io.Copy(h, r)
	if err != nil {
		return d, n, fmt.Errorf("hashing stream: %w", err)
	}

	copy(d[:], h.Sum(nil))

	return d, n, nil
}

// FileDigest is the hash result for one source file.
type FileDigest struct {
	Path   string
	Digest Digest
	Size   int64
}

// HashFile opens f and hashes its content.
func HashFile(f models.SourceFile) (FileDigest, error) {
	rc, err := f.Open()
	if err != nil {
		return FileDigest{}, fmt.Errorf("opening %s: %w", f.Path, err)
	}
	defer rc.Close()

	d, n, err := Sum(rc)
	if err != nil {
		return FileDigest{}, fmt.Errorf("%s: %w", f.Path, err)
	}

	return FileDigest{Path: f.Path, Digest: d, Size: n}, nil
}

// HashFiles hashes files concurrently with at most workers goroutines.
// The result is in the same order as files regardless of completion order.
// The first error cancels outstanding work.
func HashFiles(ctx context.Context, files []models.SourceFile, workers int) ([]FileDigest, error) {
	if workers < 1 {
		workers = 1
	}

	out := make([]FileDigest, len(files))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, f := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			fd, err := HashFile(f)
			if err != nil {
				return err
			}

			out[i] = fd

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return out, nil
}
