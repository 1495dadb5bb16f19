package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/persistorai/auditseal/client"
	"github.com/persistorai/auditseal/internal/archive"
	"github.com/persistorai/auditseal/internal/hashing"
	"github.com/persistorai/auditseal/internal/integrity"
	"github.com/persistorai/auditseal/internal/merkle"
)

func newVerifyArchiveCmd() *cobra.Command {
	var fingerprint string
	cmd := &cobra.Command{
		Use:   "verify-archive <archive.zip>",
		Short: "Verify a downloaded package archive without a server",
		Long: `Verify a downloaded package archive without a server: file hashes, Merkle
root, signature and (when present) the RFC 3161 timestamp. The archive carries
the public key it was signed with; pass --fingerprint to pin the expected key.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			a, err := archive.Read(data)
			if err != nil {
				return fmt.Errorf("reading archive: %w", err)
			}

			report, fp, err := integrity.VerifyArchive(context.Background(), a, time.Now())
			if err != nil {
				return err
			}

			// The client types share the wire shape of the report.
			var out client.VerificationReport
			raw, _ := json.Marshal(report)
			if err := json.Unmarshal(raw, &out); err != nil {
				return err
			}
			printReport(&out)

			if fingerprint != "" && !strings.EqualFold(fingerprint, fp) {
				return fmt.Errorf("archive signed by key %s, expected %s", fp, fingerprint)
			}
			if !report.IsValid {
				return fmt.Errorf("archive failed: %s", strings.Join(report.ChecksFailed, ", "))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&fingerprint, "fingerprint", "", "Expected signing key fingerprint (hex)")
	return cmd
}

func toMerkleProof(p *client.Proof) *merkle.Proof {
	if p == nil {
		return nil
	}
	out := &merkle.Proof{LeafIndex: p.LeafIndex, LeafCount: p.LeafCount}
	for _, s := range p.Siblings {
		out.Siblings = append(out.Siblings, merkle.ProofStep{Hash: s.Hash, Left: s.Left})
	}
	return out
}

// checkProof verifies fp, optionally against the bytes of a local file.
func checkProof(fp *client.FileProof, file string) error {
	leaf, err := hashing.ParseDigest(fp.Leaf)
	if err != nil {
		return fmt.Errorf("leaf: %w", err)
	}
	root, err := hashing.ParseDigest(fp.MerkleRoot)
	if err != nil {
		return fmt.Errorf("merkle_root: %w", err)
	}

	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		got, _, err := hashing.Sum(f)
		if err != nil {
			return err
		}
		if got != leaf {
			return fmt.Errorf("%s hashes to %s, proof is for %s", file, got.Hex(), leaf.Hex())
		}
	}

	if !merkle.VerifyProof(leaf, toMerkleProof(fp.Proof), root) {
		return errors.New("proof does not lead to the merkle root")
	}
	return nil
}

func newVerifyProofCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "verify-proof <proof.json>",
		Short: "Check a saved inclusion proof without a server",
		Long: `Check a proof saved from "auditseal package proof". With --file the local
file must also hash to the proven leaf.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var fp client.FileProof
			if err := json.Unmarshal(data, &fp); err != nil {
				return fmt.Errorf("decoding proof: %w", err)
			}
			if err := checkProof(&fp, file); err != nil {
				return err
			}
			output(map[string]any{"valid": true, "file_path": fp.FilePath, "merkle_root": fp.MerkleRoot}, "true")
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Local copy of the proven file")
	return cmd
}
