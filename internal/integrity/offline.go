package integrity

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/persistorai/auditseal/internal/archive"
	"github.com/persistorai/auditseal/internal/hashing"
	"github.com/persistorai/auditseal/internal/models"
	"github.com/persistorai/auditseal/internal/signing"
	"github.com/persistorai/auditseal/internal/timestamp"
)

// VerifyArchive checks a downloaded archive on its own, trusting only the
// public key it carries. Callers that want to pin a key compare
// report.Fingerprint against a known value.
func VerifyArchive(ctx context.Context, a *archive.Archive, now time.Time) (*models.VerificationReport, string, error) {
	report := &models.VerificationReport{}
	report.Source = models.VerifySourceCLI
	report.VerifiedAt = now.UTC()
	report.PackageID = a.Manifest.PackageID
	report.OrgID = a.Manifest.OrgID

	expected := make([]ExpectedFile, len(a.Manifest.Files))
	for i, f := range a.Manifest.Files {
		expected[i] = ExpectedFile{Path: f.Path, SHA256: f.SHA256, MerkleIndex: f.MerkleIndex}
	}

	actual, err := hashing.HashFiles(ctx, a.SourceFiles(), 4)
	if err != nil {
		return nil, "", err
	}

	failure, mismatches := CheckFileHashes(expected, actual)
	report.Record(models.CheckFileHashes, failure)
	report.FileMismatches = mismatches

	leaves, err := Leaves(expected, actual)
	if err != nil {
		report.Record(models.CheckMerkleRoot, &models.CheckError{Message: err.Error(), Expected: a.Manifest.MerkleRoot})
	} else {
		report.Record(models.CheckMerkleRoot, CheckMerkleRoot(leaves, a.Manifest.MerkleRoot))
	}

	sig := a.Signature
	report.Record(models.CheckSignature, checkDetachedSignature(a, sig))

	if len(a.TimestampToken) > 0 {
		report.Record(models.CheckTimestamp, checkArchiveTimestamp(a, sig, now))
	}

	report.Finalize()

	fingerprint := ""
	if pub, err := signing.DecodePublicKey(sig.PublicKey); err == nil {
		fingerprint, _ = signing.Fingerprint(pub)
	}

	return report, fingerprint, nil
}

func checkDetachedSignature(a *archive.Archive, sig *archive.SignatureDoc) *models.CheckError {
	mh := archive.ManifestHash(a.ManifestBytes).Hex()
	if mh != sig.ManifestHash {
		return &models.CheckError{Message: "manifest hash does not match the signed value", Expected: sig.ManifestHash, Actual: mh}
	}

	if a.Manifest.MerkleRoot != sig.MerkleRoot {
		return &models.CheckError{Message: "manifest merkle root does not match the signed value", Expected: sig.MerkleRoot, Actual: a.Manifest.MerkleRoot}
	}

	if pub, err := signing.DecodePublicKey(sig.PublicKey); err == nil {
		if fp, _ := signing.Fingerprint(pub); fp != sig.Fingerprint {
			return &models.CheckError{Message: "public key does not match its fingerprint", Expected: sig.Fingerprint, Actual: fp}
		}
	}

	return CheckSignature(sig.PublicKey, sig.ManifestHash, sig.MerkleRoot, sig.Value)
}

func checkArchiveTimestamp(a *archive.Archive, sig *archive.SignatureDoc, now time.Time) *models.CheckError {
	tok, err := timestamp.ParseToken(a.TimestampToken)
	if err != nil {
		return &models.CheckError{Message: err.Error()}
	}

	raw, err := base64.StdEncoding.DecodeString(sig.Value)
	if err != nil {
		return &models.CheckError{Message: "invalid signature encoding"}
	}

	return CheckTimestamp(tok, raw, a.Manifest.CreatedAt, now, DefaultClockSkew)
}
