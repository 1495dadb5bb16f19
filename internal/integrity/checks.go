// Package integrity holds the pure verification checks shared by the
// verification engine and offline archive verification. Each check returns
// nil when it passes and a populated CheckError when it fails.
package integrity

import (
	"encoding/base64"
	"fmt"
	"sort"
	"time"

	"github.com/persistorai/auditseal/internal/hashing"
	"github.com/persistorai/auditseal/internal/merkle"
	"github.com/persistorai/auditseal/internal/models"
	"github.com/persistorai/auditseal/internal/retention"
	"github.com/persistorai/auditseal/internal/signing"
	"github.com/persistorai/auditseal/internal/timestamp"
)

// DefaultClockSkew is the tolerance applied to timestamp plausibility.
const DefaultClockSkew = 5 * time.Minute

// ExpectedFile is one file as recorded at sealing time.
type ExpectedFile struct {
	Path        string
	SHA256      string
	MerkleIndex int
}

// SortByIndex orders files by Merkle index in place.
func SortByIndex(files []ExpectedFile) {
	sort.Slice(files, func(i, j int) bool { return files[i].MerkleIndex < files[j].MerkleIndex })
}

// CheckFileHashes compares freshly computed digests against the recorded ones.
// Files missing on either side count as mismatches.
func CheckFileHashes(expected []ExpectedFile, actual []hashing.FileDigest) (*models.CheckError, []models.FileMismatch) {
	got := make(map[string]string, len(actual))
	for _, fd := range actual {
		got[fd.Path] = fd.Digest.Hex()
	}

	var mismatches []models.FileMismatch

	seen := make(map[string]bool, len(expected))
	for _, e := range expected {
		seen[e.Path] = true

		a, ok := got[e.Path]
		switch {
		case !ok:
			mismatches = append(mismatches, models.FileMismatch{FilePath: e.Path, Expected: e.SHA256, Actual: "missing"})
		case a != e.SHA256:
			mismatches = append(mismatches, models.FileMismatch{FilePath: e.Path, Expected: e.SHA256, Actual: a})
		}
	}

	for _, fd := range actual {
		if !seen[fd.Path] {
			mismatches = append(mismatches, models.FileMismatch{FilePath: fd.Path, Expected: "absent", Actual: fd.Digest.Hex()})
		}
	}

	if len(mismatches) == 0 {
		return nil, nil
	}

	ce := &models.CheckError{
		Message:  fmt.Sprintf("%d of %d files do not match the manifest", len(mismatches), len(expected)),
		Expected: fmt.Sprintf("%d matching files", len(expected)),
		Actual:   fmt.Sprintf("%d matching files", len(expected)-countExpectedMismatches(mismatches)),
	}

	if len(mismatches) == 1 {
		m := mismatches[0]
		ce.Message = fmt.Sprintf("file %s does not match the manifest", m.FilePath)
		ce.Expected = m.Expected
		ce.Actual = m.Actual
	}

	return ce, mismatches
}

func countExpectedMismatches(ms []models.FileMismatch) int {
	n := 0
	for _, m := range ms {
		if m.Expected != "absent" {
			n++
		}
	}

	return n
}

// Leaves returns the Merkle leaves in index order. When actual digests are
// given they replace the recorded ones, so a tampered file changes the root.
func Leaves(expected []ExpectedFile, actual []hashing.FileDigest) ([]hashing.Digest, error) {
	ordered := append([]ExpectedFile(nil), expected...)
	SortByIndex(ordered)

	fresh := make(map[string]hashing.Digest, len(actual))
	for _, fd := range actual {
		fresh[fd.Path] = fd.Digest
	}

	leaves := make([]hashing.Digest, 0, len(ordered))
	for _, e := range ordered {
		if actual != nil {
			d, ok := fresh[e.Path]
			if !ok {
				return nil, fmt.Errorf("no fresh bytes for %s", e.Path)
			}
			leaves = append(leaves, d)
			continue
		}

		d, err := hashing.ParseDigest(e.SHA256)
		if err != nil {
			return nil, fmt.Errorf("recorded digest of %s: %w", e.Path, err)
		}
		leaves = append(leaves, d)
	}

	return leaves, nil
}

// CheckMerkleRoot rebuilds the root over leaves and compares it to the stored root.
func CheckMerkleRoot(leaves []hashing.Digest, storedRoot string) *models.CheckError {
	root, err := merkle.Root(leaves)
	if err != nil {
		return &models.CheckError{Message: fmt.Sprintf("cannot rebuild merkle tree: %v", err), Expected: storedRoot}
	}

	if root.Hex() != storedRoot {
		return &models.CheckError{Message: "merkle root mismatch", Expected: storedRoot, Actual: root.Hex()}
	}

	return nil
}

// CheckSignature verifies signatureB64 over manifestHash||merkleRoot with
// the base64 SPKI public key.
func CheckSignature(publicKey, manifestHash, merkleRoot, signatureB64 string) *models.CheckError {
	mh, err := hashing.ParseDigest(manifestHash)
	if err != nil {
		return &models.CheckError{Message: fmt.Sprintf("invalid manifest hash: %v", err)}
	}

	root, err := hashing.ParseDigest(merkleRoot)
	if err != nil {
		return &models.CheckError{Message: fmt.Sprintf("invalid merkle root: %v", err)}
	}

	sig, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return &models.CheckError{Message: fmt.Sprintf("invalid signature encoding: %v", err)}
	}

	if err := signing.Verify(publicKey, signing.Payload(mh, root), sig); err != nil {
		return &models.CheckError{Message: err.Error(), Expected: "valid Ed25519 signature", Actual: "invalid"}
	}

	return nil
}

// CheckTimestamp checks that tok covers SHA-256(signature) and that its
// asserted time lies within [createdAt-skew, now+skew].
func CheckTimestamp(tok *timestamp.Token, signature []byte, createdAt, now time.Time, skew time.Duration) *models.CheckError {
	imprint := timestamp.MessageImprint(signature)

	if !tok.Covers(imprint) {
		return &models.CheckError{
			Message:  "timestamp token does not cover the signature",
			Expected: hexOf(imprint),
			Actual:   hexOf(tok.HashedMessage),
		}
	}

	if tok.Time.Before(createdAt.Add(-skew)) {
		return &models.CheckError{
			Message:  "timestamp predates the package",
			Expected: "not before " + createdAt.UTC().Format(time.RFC3339),
			Actual:   tok.Time.UTC().Format(time.RFC3339),
		}
	}

	if tok.Time.After(now.Add(skew)) {
		return &models.CheckError{
			Message:  "timestamp is in the future",
			Expected: "not after " + now.UTC().Format(time.RFC3339),
			Actual:   tok.Time.UTC().Format(time.RFC3339),
		}
	}

	return nil
}

// CheckWORM compares the observed retention to the recorded lock.
func CheckWORM(observed *models.RetentionState, mode models.RetentionMode, until time.Time) *models.CheckError {
	if retention.Matches(observed, mode, until) {
		return nil
	}

	actual := "no retention"
	if observed != nil {
		actual = fmt.Sprintf("%s until %s", observed.Mode, observed.Until.UTC().Format(time.RFC3339))
	}

	return &models.CheckError{
		Message:  "object retention does not match the recorded lock",
		Expected: fmt.Sprintf("%s until %s", mode, until.UTC().Format(time.RFC3339)),
		Actual:   actual,
	}
}

func hexOf(b []byte) string {
	return fmt.Sprintf("%x", b)
}
