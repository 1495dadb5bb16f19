package signing

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/persistorai/auditseal/internal/config"
)

// publicKeyCacheTTL is how long a cached public key is valid before re-reading it from Vault.
const publicKeyCacheTTL = 15 * time.Minute

// uuidPattern validates org IDs to prevent path traversal into other transit keys.
var uuidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

var errVaultNotFound = errors.New("signing/vault: not found")

type cachedPublicKey struct {
	key       ed25519.PublicKey
	fetchedAt time.Time
}

// VaultSecretStore keeps one Ed25519 transit key per organization in HashiCorp
// Vault. Rotation creates a new key version; signing uses the latest version.
type VaultSecretStore struct {
	addr   string
	mount  string
	token  config.Secret
	client *http.Client
	cache  sync.Map
	group  singleflight.Group
}

// NewVaultSecretStore creates a VaultSecretStore against the transit engine at mount.
func NewVaultSecretStore(addr, token, mount string, timeout time.Duration) *VaultSecretStore {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &VaultSecretStore{
		addr:  strings.TrimRight(addr, "/"),
		mount: mount,
		token: config.Secret(token),
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
			},
		},
	}
}

// GenerateKeypair creates the org's transit key on first use and rotates it afterwards.
func (v *VaultSecretStore) GenerateKeypair(ctx context.Context, orgID string) (ed25519.PublicKey, error) {
	name, err := keyName(orgID)
	if err != nil {
		return nil, err
	}

	_, err = v.readKey(ctx, name)

	switch {
	case errors.Is(err, errVaultNotFound):
		body := map[string]any{"type": "ed25519", "exportable": false}
		if err := v.do(ctx, http.MethodPost, "keys/"+name, body, nil); err != nil {
			return nil, fmt.Errorf("signing/vault: create key: %w", err)
		}
	case err != nil:
		return nil, err
	default:
		if err := v.do(ctx, http.MethodPost, "keys/"+name+"/rotate", nil, nil); err != nil {
			return nil, fmt.Errorf("signing/vault: rotate key: %w", err)
		}
	}

	v.cache.Delete(orgID)

	pub, err := v.readKey(ctx, name)
	if err != nil {
		return nil, err
	}

	v.cache.Store(orgID, cachedPublicKey{key: pub, fetchedAt: time.Now()})

	return pub, nil
}

// PublicKey returns the latest public key version, cached for publicKeyCacheTTL.
func (v *VaultSecretStore) PublicKey(ctx context.Context, orgID string) (ed25519.PublicKey, error) {
	if cached, ok := v.cache.Load(orgID); ok {
		entry, valid := cached.(cachedPublicKey)
		if valid && time.Since(entry.fetchedAt) < publicKeyCacheTTL {
			return append(ed25519.PublicKey(nil), entry.key...), nil
		}
		v.cache.Delete(orgID)
	}

	val, err, _ := v.group.Do(orgID, func() (any, error) {
		name, err := keyName(orgID)
		if err != nil {
			return nil, err
		}

		pub, err := v.readKey(ctx, name)
		if err != nil {
			return nil, err
		}

		v.cache.Store(orgID, cachedPublicKey{key: pub, fetchedAt: time.Now()})

		return pub, nil
	})
	if err != nil {
		return nil, err
	}

	pub, ok := val.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("signing/vault: unexpected singleflight result type %T", val)
	}

	return append(ed25519.PublicKey(nil), pub...), nil
}

// Sign signs payload with the latest key version of the org's transit key.
func (v *VaultSecretStore) Sign(ctx context.Context, orgID string, payload []byte) ([]byte, error) {
	name, err := keyName(orgID)
	if err != nil {
		return nil, err
	}

	var result struct {
		Data struct {
			Signature string `json:"signature"`
		} `json:"data"`
	}

	body := map[string]any{"input": base64.StdEncoding.EncodeToString(payload)}
	if err := v.do(ctx, http.MethodPost, "sign/"+name, body, &result); err != nil {
		return nil, fmt.Errorf("signing/vault: sign: %w", err)
	}

	// Format is vault:v<version>:<base64>.
	parts := strings.Split(result.Data.Signature, ":")
	if len(parts) != 3 || parts[0] != "vault" {
		return nil, fmt.Errorf("signing/vault: unexpected signature format")
	}

	sig, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, fmt.Errorf("signing/vault: decode signature: %w", err)
	}

	return sig, nil
}

func (v *VaultSecretStore) readKey(ctx context.Context, name string) (ed25519.PublicKey, error) {
	var result struct {
		Data struct {
			LatestVersion int `json:"latest_version"`
			Keys          map[string]struct {
				PublicKey string `json:"public_key"`
			} `json:"keys"`
		} `json:"data"`
	}

	if err := v.do(ctx, http.MethodGet, "keys/"+name, nil, &result); err != nil {
		return nil, err
	}

	entry, ok := result.Data.Keys[strconv.Itoa(result.Data.LatestVersion)]
	if !ok || entry.PublicKey == "" {
		return nil, fmt.Errorf("signing/vault: key %s has no public key for version %d", name, result.Data.LatestVersion)
	}

	raw, err := base64.StdEncoding.DecodeString(entry.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("signing/vault: decode public key: %w", err)
	}

	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("signing/vault: public key must be %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}

	return ed25519.PublicKey(raw), nil
}

func (v *VaultSecretStore) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader = http.NoBody

	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("signing/vault: encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	reqURL := fmt.Sprintf("%s/v1/%s/%s", v.addr, v.mount, path)

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return fmt.Errorf("signing/vault: create request: %w", err)
	}

	req.Header.Set("X-Vault-Token", v.token.Value())
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("signing/vault: request failed: %w", err)
	}
	defer resp.Body.Close()

	// Limit all body reads to 1 MB to prevent memory exhaustion.
	limitedBody := io.LimitReader(resp.Body, 1<<20)

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, limitedBody)
		return errVaultNotFound
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(limitedBody)
		return fmt.Errorf("signing/vault: unexpected status %d: %s", resp.StatusCode, string(msg))
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, limitedBody)
		return nil
	}

	if err := json.NewDecoder(limitedBody).Decode(out); err != nil {
		return fmt.Errorf("signing/vault: decode response: %w", err)
	}

	return nil
}

func keyName(orgID string) (string, error) {
	if !uuidPattern.MatchString(orgID) {
		return "", fmt.Errorf("signing/vault: invalid org ID format: %q", orgID)
	}

	return "auditseal-" + strings.ToLower(orgID), nil
}
