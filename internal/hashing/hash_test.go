package hashing_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/persistorai/auditseal/internal/hashing"
	"github.com/persistorai/auditseal/internal/models"
)

// sha256("abc")
const abcHex = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"

func TestSum_KnownVector(t *testing.T) {
	d, n, err := hashing.Sum(strings.NewReader("abc"))
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}

	if d.Hex() != abcHex {
		t.Errorf("digest = %s, want %s", d.Hex(), abcHex)
	}
	if n != 3 {
		t.Errorf("size = %d, want 3", n)
	}

	if hashing.SumBytes([]byte("abc")) != d {
		t.Error("SumBytes disagrees with Sum")
	}
}

func TestParseDigest(t *testing.T) {
	d, err := hashing.ParseDigest(abcHex)
	if err != nil {
		t.Fatalf("ParseDigest: %v", err)
	}
	if d.Hex() != abcHex {
		t.Errorf("round trip = %s", d.Hex())
	}

	if _, err := hashing.ParseDigest("zz"); err == nil {
		t.Error("expected error for non-hex input")
	}
	if _, err := hashing.ParseDigest("abcd"); err == nil {
		t.Error("expected error for short digest")
	}
}

func TestHashFiles_PreservesOrder(t *testing.T) {
	var files []models.SourceFile
	for i := range 50 {
		files = append(files, models.BytesFile(fmt.Sprintf("f%02d.csv", i), []byte(strings.Repeat("x", i))))
	}

	got, err := hashing.HashFiles(context.Background(), files, 8)
	if err != nil {
		t.Fatalf("HashFiles: %v", err)
	}

	if len(got) != len(files) {
		t.Fatalf("got %d digests, want %d", len(got), len(files))
	}

	for i, fd := range got {
		if fd.Path != files[i].Path {
			t.Errorf("index %d: path = %s, want %s", i, fd.Path, files[i].Path)
		}
		if fd.Size != int64(i) {
			t.Errorf("index %d: size = %d, want %d", i, fd.Size, i)
		}
		if fd.Digest != hashing.SumBytes([]byte(strings.Repeat("x", i))) {
			t.Errorf("index %d: digest mismatch", i)
		}
	}
}

func TestHashFiles_PropagatesOpenError(t *testing.T) {
	boom := errors.New("storage offline")
	files := []models.SourceFile{
		models.BytesFile("ok.csv", []byte("ok")),
		{Path: "bad.csv", Open: func() (io.ReadCloser, error) { return nil, boom }},
	}

	_, err := hashing.HashFiles(context.Background(), files, 2)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped %v", err, boom)
	}
	if !strings.Contains(err.Error(), "bad.csv") {
		t.Errorf("error should name the file, got %q", err)
	}
}

func TestHashFiles_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := hashing.HashFiles(ctx, []models.SourceFile{models.BytesFile("a", []byte("a"))}, 1)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
