package archive

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/persistorai/auditseal/internal/models"
)

const (
	filesDir      = "files/"
	manifestName  = "manifest.json"
	signatureName = "signature.json"
	timestampName = "timestamp.tsr"

	// maxEntryBytes bounds a single decompressed entry when reading.
	maxEntryBytes = 1 << 30
)

// Input is everything needed to write an archive. Files must already be in
// manifest order.
type Input struct {
	Manifest       []byte
	Signature      SignatureDoc
	TimestampToken []byte
	Files          []models.SourceFile
	// ModTime is stamped on every entry so the same input yields the same bytes.
	ModTime time.Time
}

// File is one exported file read back from an archive.
type File struct {
	Path string
	Data []byte
}

// Archive is a parsed archive.
type Archive struct {
	ManifestBytes  []byte
	Manifest       *Manifest
	Signature      *SignatureDoc
	TimestampToken []byte
	Files          []File
}

// Write serialises in as a zip into w.
func Write(w io.Writer, in *Input) error {
	zw := zip.NewWriter(w)

	for _, f := range in.Files {
		if err := ValidatePath(f.Path); err != nil {
			return err
		}

		if err := writeEntry(zw, filesDir+f.Path, in.ModTime, func(dst io.Writer) error {
			rc, err := f.Open()
			if err != nil {
				return fmt.Errorf("open %s: %w", f.Path, err)
			}
			defer rc.Close()

			_, err = io.Copy(dst, rc)
			return err
		}); err != nil {
			return err
		}
	}

	if err := writeEntry(zw, manifestName, in.ModTime, bytesWriter(in.Manifest)); err != nil {
		return err
	}

	sig, err := json.MarshalIndent(in.Signature, "", "  ")
	if err != nil {
		return fmt.Errorf("archive: encode signature: %w", err)
	}

	if err := writeEntry(zw, signatureName, in.ModTime, bytesWriter(sig)); err != nil {
		return err
	}

	if len(in.TimestampToken) > 0 {
		if err := writeEntry(zw, timestampName, in.ModTime, bytesWriter(in.TimestampToken)); err != nil {
			return err
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("archive: close zip: %w", err)
	}

	return nil
}

// Bytes is a convenience around Write for callers that upload the archive whole.
func Bytes(in *Input) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, in); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Read parses a zip produced by Write.
func Read(data []byte) (*Archive, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("archive: open zip: %w", err)
	}

	a := &Archive{}

	for _, zf := range zr.File {
		b, err := readEntry(zf)
		if err != nil {
			return nil, err
		}

		switch {
		case zf.Name == manifestName:
			a.ManifestBytes = b
		case zf.Name == signatureName:
			var sig SignatureDoc
			if err := json.Unmarshal(b, &sig); err != nil {
				return nil, fmt.Errorf("archive: decode signature: %w", err)
			}
			a.Signature = &sig
		case zf.Name == timestampName:
			a.TimestampToken = b
		case strings.HasPrefix(zf.Name, filesDir):
			p := strings.TrimPrefix(zf.Name, filesDir)
			if err := ValidatePath(p); err != nil {
				return nil, err
			}
			a.Files = append(a.Files, File{Path: p, Data: b})
		default:
			return nil, fmt.Errorf("archive: unexpected entry %q", zf.Name)
		}
	}

	if a.ManifestBytes == nil {
		return nil, fmt.Errorf("archive: missing %s", manifestName)
	}

	if a.Signature == nil {
		return nil, fmt.Errorf("archive: missing %s", signatureName)
	}

	a.Manifest, err = DecodeManifest(a.ManifestBytes)
	if err != nil {
		return nil, err
	}

	return a, nil
}

// SourceFiles exposes the archived files as SourceFiles in archive order.
func (a *Archive) SourceFiles() []models.SourceFile {
	out := make([]models.SourceFile, len(a.Files))
	for i, f := range a.Files {
		out[i] = models.BytesFile(f.Path, f.Data)
	}

	return out
}

func writeEntry(zw *zip.Writer, name string, mod time.Time, fill func(io.Writer) error) error {
	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: mod.UTC(),
	})
	if err != nil {
		return fmt.Errorf("archive: create %s: %w", name, err)
	}

	if err := fill(w); err != nil {
		return fmt.Errorf("archive: write %s: %w", name, err)
	}

	return nil
}

func bytesWriter(b []byte) func(io.Writer) error {
	return func(w io.Writer) error {
		_, err := w.Write(b)
		return err
	}
}

func readEntry(zf *zip.File) ([]byte, error) {
	rc, err := zf.Open()
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", zf.Name, err)
	}
	defer rc.Close()

	b, err := io.ReadAll(io.LimitReader(rc, maxEntryBytes+1))
	if err != nil {
		return nil, fmt.Errorf("archive: read %s: %w", zf.Name, err)
	}

	if len(b) > maxEntryBytes {
		return nil, fmt.Errorf("archive: entry %s exceeds %d bytes", zf.Name, maxEntryBytes)
	}

	return b, nil
}
