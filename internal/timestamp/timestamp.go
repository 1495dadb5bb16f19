// Package timestamp obtains and parses RFC 3161 timestamp tokens that anchor
// a package signature to a trusted point in time.
package timestamp

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"time"

	"github.com/digitorus/timestamp"
)

// ErrMismatch is returned when a token does not cover the submitted digest.
var ErrMismatch = errors.New("timestamp token does not match request")

// Authority obtains tokens from a timestamp authority.
type Authority interface {
	// Timestamp requests a token over digest, a SHA-256 hash.
	Timestamp(ctx context.Context, digest []byte) (*Token, error)
	// Name identifies the authority for the package record.
	Name() string
}

// Parser decodes a stored token.
type Parser interface {
	Parse(raw []byte) (*Token, error)
}

// Token is a parsed timestamp token.
type Token struct {
	Raw           []byte
	HashAlgorithm crypto.Hash
	HashedMessage []byte
	Time          time.Time
	SerialNumber  string
	// Authority names the issuer: the client's host for fresh tokens, the
	// signing certificate's common name for parsed ones.
	Authority string
}

// MessageImprint returns the digest submitted to the authority for a
// package signature: SHA-256 over the raw signature bytes.
func MessageImprint(signature []byte) []byte {
	sum := sha256.Sum256(signature)
	return sum[:]
}

// Covers reports whether the token's hashed message equals digest.
func (t *Token) Covers(digest []byte) bool {
	return t.HashAlgorithm == crypto.SHA256 && bytes.Equal(t.HashedMessage, digest)
}

// RFC3161Client talks to an RFC 3161 authority over HTTP.
type RFC3161Client struct {
	url    string
	name   string
	client *http.Client
}

var (
	_ Authority = (*RFC3161Client)(nil)
	_ Parser    = (*RFC3161Client)(nil)
)

// NewRFC3161Client creates a client for the authority at tsaURL.
func NewRFC3161Client(tsaURL string, timeout time.Duration) *RFC3161Client {
	name := tsaURL
	if u, err := url.Parse(tsaURL); err == nil && u.Host != "" {
		name = u.Host
	}

	return &RFC3161Client{
		url:    tsaURL,
		name:   name,
		client: &http.Client{Timeout: timeout},
	}
}

// Name returns the authority host.
func (c *RFC3161Client) Name() string { return c.name }

// Timestamp submits digest and returns the granted token. The response must
// echo the nonce and the hashed message that were sent.
func (c *RFC3161Client) Timestamp(ctx context.Context, digest []byte) (*Token, error) {
	if len(digest) != sha256.Size {
		return nil, fmt.Errorf("timestamp: digest must be %d bytes, got %d", sha256.Size, len(digest))
	}

	nonce, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 64))
	if err != nil {
		return nil, fmt.Errorf("timestamp: generate nonce: %w", err)
	}

	req := timestamp.Request{
		HashAlgorithm: crypto.SHA256,
		HashedMessage: digest,
		Nonce:         nonce,
		Certificates:  true,
	}

	body, err := req.Marshal()
	if err != nil {
		return nil, fmt.Errorf("timestamp: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("timestamp: create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/timestamp-query")
	httpReq.Header.Set("Accept", "application/timestamp-reply")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("timestamp: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("timestamp: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("timestamp: authority returned status %d", resp.StatusCode)
	}

	ts, err := timestamp.ParseResponse(raw)
	if err != nil {
		return nil, fmt.Errorf("timestamp: parse response: %w", err)
	}

	if ts.Nonce == nil || ts.Nonce.Cmp(nonce) != 0 {
		return nil, fmt.Errorf("%w: nonce", ErrMismatch)
	}

	tok := fromTimestamp(ts)
	if !tok.Covers(digest) {
		return nil, fmt.Errorf("%w: hashed message", ErrMismatch)
	}
	tok.Authority = c.name

	return tok, nil
}

// Parse decodes a DER TimeStampToken.
func (c *RFC3161Client) Parse(raw []byte) (*Token, error) {
	return ParseToken(raw)
}

// ParseToken decodes a DER TimeStampToken and checks its CMS signature.
func ParseToken(raw []byte) (*Token, error) {
	ts, err := timestamp.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("timestamp: parse token: %w", err)
	}

	tok := fromTimestamp(ts)
	if len(tok.Raw) == 0 {
		tok.Raw = raw
	}

	return tok, nil
}

func fromTimestamp(ts *timestamp.Timestamp) *Token {
	tok := &Token{
		Raw:           ts.RawToken,
		HashAlgorithm: ts.HashAlgorithm,
		HashedMessage: ts.HashedMessage,
		Time:          ts.Time.UTC(),
	}

	if ts.SerialNumber != nil {
		tok.SerialNumber = ts.SerialNumber.String()
	}

	if len(ts.Certificates) > 0 {
		tok.Authority = ts.Certificates[0].Subject.CommonName
	}

	return tok
}
