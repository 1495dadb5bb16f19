package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/persistorai/auditseal/client"
	"github.com/persistorai/auditseal/internal/hashing"
	"github.com/persistorai/auditseal/internal/merkle"
)

// proofFixture seals three files and returns the proof of the second one,
// along with a directory holding the files.
func proofFixture(t *testing.T) (*client.FileProof, string) {
	t.Helper()

	dir := t.TempDir()
	contents := []string{"id,hours\n1,8\n", "id,hours\n2,7.5\n", "id,hours\n3,6\n"}
	leaves := make([]hashing.Digest, len(contents))
	for i, c := range contents {
		leaves[i] = hashing.SumBytes([]byte(c))
		name := filepath.Join(dir, string(rune('a'+i))+".csv")
		if err := os.WriteFile(name, []byte(c), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	tree, err := merkle.Build(leaves)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	p, err := tree.Proof(1)
	if err != nil {
		t.Fatalf("Proof: %v", err)
	}

	var cp client.Proof
	raw, _ := json.Marshal(p)
	if err := json.Unmarshal(raw, &cp); err != nil {
		t.Fatal(err)
	}

	return &client.FileProof{
		FilePath:   "b.csv",
		Leaf:       leaves[1].Hex(),
		MerkleRoot: tree.Root().Hex(),
		Proof:      &cp,
	}, dir
}

func TestCheckProof(t *testing.T) {
	fp, dir := proofFixture(t)

	if err := checkProof(fp, ""); err != nil {
		t.Errorf("proof alone: %v", err)
	}
	if err := checkProof(fp, filepath.Join(dir, "b.csv")); err != nil {
		t.Errorf("proof with matching file: %v", err)
	}

	if err := checkProof(fp, filepath.Join(dir, "c.csv")); err == nil || !strings.Contains(err.Error(), "proof is for") {
		t.Errorf("wrong file err = %v", err)
	}

	forged := *fp
	forged.MerkleRoot = hashing.SumBytes([]byte("other")).Hex()
	if err := checkProof(&forged, ""); err == nil {
		t.Error("proof verified against the wrong root")
	}

	forged = *fp
	forged.Leaf = "zz"
	if err := checkProof(&forged, ""); err == nil {
		t.Error("malformed leaf accepted")
	}
}

func TestVerifyProofCommand(t *testing.T) {
	fp, dir := proofFixture(t)

	proofPath := filepath.Join(t.TempDir(), "proof.json")
	data, _ := json.Marshal(fp)
	if err := os.WriteFile(proofPath, data, 0o600); err != nil {
		t.Fatal(err)
	}

	root := newTestRoot(t)
	flagFmt = "quiet"
	out := captureStdout(t, func() {
		if err := executeArgs(t, root, "verify-proof", proofPath, "--file", filepath.Join(dir, "b.csv"), "--format", "quiet"); err != nil {
			t.Errorf("verify-proof: %v", err)
		}
	})
	if strings.TrimSpace(out) != "true" {
		t.Errorf("output = %q", out)
	}

	root = newTestRoot(t)
	if err := executeArgs(t, root, "verify-proof", proofPath, "--file", filepath.Join(dir, "a.csv")); err == nil {
		t.Error("verify-proof accepted a different file")
	}
}

func TestReadDirFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "payroll"), 0o755); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(dir, "summary.csv"), []byte("x"), 0o600)        //nolint:errcheck
	os.WriteFile(filepath.Join(dir, "payroll", "run.csv"), []byte("y"), 0o600) //nolint:errcheck

	files, err := readDirFiles(dir)
	if err != nil {
		t.Fatalf("readDirFiles: %v", err)
	}
	if len(files) != 2 || string(files["payroll/run.csv"]) != "y" {
		t.Errorf("files = %v", files)
	}

	if _, err := readDirFiles(t.TempDir()); err == nil {
		t.Error("empty dir accepted")
	}
}
