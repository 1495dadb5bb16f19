package service

import (
	"context"
	"crypto/ed25519"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/persistorai/auditseal/internal/models"
	"github.com/persistorai/auditseal/internal/signing"
)

func newTestKeyManager() (*KeyManager, *memKeyStore, *signing.MemorySecretStore) {
	store := &memKeyStore{}
	secrets := signing.NewMemorySecretStore()
	return NewKeyManager(store, secrets, time.Second, testLogger()), store, secrets
}

func TestKeyManager_EnsureActiveKeyCreatesOnce(t *testing.T) {
	km, store, _ := newTestKeyManager()
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := km.EnsureActiveKey(ctx, testOrg); err != nil {
				t.Errorf("EnsureActiveKey: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := store.count("RotateKey"); n != 1 {
		t.Errorf("RotateKey called %d times, want 1", n)
	}

	key, err := km.GetActiveKey(ctx, testOrg)
	if err != nil {
		t.Fatalf("GetActiveKey: %v", err)
	}
	if key.Version != 1 || key.Algorithm != models.SignatureAlgorithm {
		t.Errorf("key = v%d %s, want v1 Ed25519", key.Version, key.Algorithm)
	}

	pub, err := signing.DecodePublicKey(key.PublicKey)
	if err != nil {
		t.Fatalf("DecodePublicKey: %v", err)
	}
	if fp, _ := signing.Fingerprint(pub); fp != key.Fingerprint {
		t.Errorf("fingerprint = %s, want %s", key.Fingerprint, fp)
	}
}

func TestKeyManager_SignRequiresActiveKey(t *testing.T) {
	km, _, _ := newTestKeyManager()

	_, err := km.Sign(context.Background(), testOrg, []byte("payload"))
	if !errors.Is(err, models.ErrNoActiveKey) {
		t.Fatalf("err = %v, want ErrNoActiveKey", err)
	}
}

func TestKeyManager_SignatureVerifiesAfterRotation(t *testing.T) {
	km, _, _ := newTestKeyManager()
	ctx := context.Background()

	v1, err := km.EnsureActiveKey(ctx, testOrg)
	if err != nil {
		t.Fatalf("EnsureActiveKey: %v", err)
	}

	payload := []byte("manifest-hash||merkle-root")

	sig, err := km.Sign(ctx, testOrg, payload)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if sig.Key.ID != v1.ID {
		t.Fatalf("signed with %s, want %s", sig.Key.ID, v1.ID)
	}

	v2, err := km.Rotate(ctx, testOrg)
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if v2.Version != 2 || !v2.IsActive {
		t.Errorf("rotated key = v%d active=%v", v2.Version, v2.IsActive)
	}

	if err := km.Verify(ctx, testOrg, v1.ID, payload, sig.Value); err != nil {
		t.Errorf("v1 signature should still verify under v1: %v", err)
	}
	if err := km.Verify(ctx, testOrg, v2.ID, payload, sig.Value); err == nil {
		t.Error("v1 signature must not verify under v2")
	}

	old, err := km.GetKey(ctx, testOrg, v1.ID)
	if err != nil {
		t.Fatalf("GetKey: %v", err)
	}
	if old.IsActive || old.RotatedAt == nil {
		t.Errorf("v1 after rotation: active=%v rotated_at=%v", old.IsActive, old.RotatedAt)
	}

	keys, err := km.ListKeys(ctx, testOrg)
	if err != nil {
		t.Fatalf("ListKeys: %v", err)
	}
	if len(keys) != 2 || keys[0].Version != 2 {
		t.Errorf("ListKeys = %+v", keys)
	}
}

func TestKeyManager_SignRecordsOutOfBandRotation(t *testing.T) {
	km, store, secrets := newTestKeyManager()
	ctx := context.Background()

	if _, err := km.EnsureActiveKey(ctx, testOrg); err != nil {
		t.Fatalf("EnsureActiveKey: %v", err)
	}

	// The secret store moves on without the key table knowing.
	pub, err := secrets.GenerateKeypair(ctx, testOrg)
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	want, _ := signing.Fingerprint(pub)

	sig, err := km.Sign(ctx, testOrg, []byte("payload"))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if sig.Key.Version != 2 || sig.Key.Fingerprint != want {
		t.Errorf("signed with v%d %s, want v2 %s", sig.Key.Version, sig.Key.Fingerprint, want)
	}
	if n := store.count("RotateKey"); n != 2 {
		t.Errorf("RotateKey called %d times, want 2", n)
	}
}

// flakyKeyStore fails the next n rotations after running generate, the way
// a lost commit does.
type flakyKeyStore struct {
	*memKeyStore
	failures int
}

var errCommitLost = errors.New("committing key rotation: connection reset")

func (s *flakyKeyStore) RotateKey(ctx context.Context, orgID string, generate func(ctx context.Context) (*models.NewSigningKey, error)) (*models.SigningKey, error) {
	s.mu.Lock()
	fail := s.failures > 0
	if fail {
		s.failures--
	}
	s.mu.Unlock()

	if fail {
		if _, err := generate(ctx); err != nil {
			return nil, err
		}
		return nil, errCommitLost
	}

	return s.memKeyStore.RotateKey(ctx, orgID, generate)
}

func TestKeyManager_FailedRotationCommit(t *testing.T) {
	tests := []struct {
		name       string
		failures   int
		rotateErr  bool
		wantActive int
	}{
		{"recorded during rotate", 1, false, 2},
		{"recorded on next sign", 2, true, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &flakyKeyStore{memKeyStore: &memKeyStore{}}
			secrets := signing.NewMemorySecretStore()
			km := NewKeyManager(store, secrets, time.Second, testLogger())
			ctx := context.Background()

			if _, err := km.EnsureActiveKey(ctx, testOrg); err != nil {
				t.Fatalf("EnsureActiveKey: %v", err)
			}

			store.failures = tt.failures
			_, err := km.Rotate(ctx, testOrg)
			if (err != nil) != tt.rotateErr {
				t.Fatalf("Rotate err = %v, want error %v", err, tt.rotateErr)
			}

			active, _ := km.GetActiveKey(ctx, testOrg)
			if active.Version != tt.wantActive {
				t.Errorf("active after rotate = v%d, want v%d", active.Version, tt.wantActive)
			}

			payload := []byte("manifest-hash||merkle-root")
			sig, err := km.Sign(ctx, testOrg, payload)
			if err != nil {
				t.Fatalf("Sign after failed rotation: %v", err)
			}
			if err := km.Verify(ctx, testOrg, sig.Key.ID, payload, sig.Value); err != nil {
				t.Errorf("signature does not verify under %s: %v", sig.Key.ID, err)
			}

			pub, _ := secrets.PublicKey(ctx, testOrg)
			if fp, _ := signing.Fingerprint(pub); sig.Key.Fingerprint != fp || sig.Key.Version != 2 {
				t.Errorf("signed with v%d %s, want v2 %s", sig.Key.Version, sig.Key.Fingerprint, fp)
			}
		})
	}
}

func TestKeyManager_ReconcileInSync(t *testing.T) {
	km, store, _ := newTestKeyManager()
	ctx := context.Background()

	v1, _ := km.EnsureActiveKey(ctx, testOrg)

	key, recorded, err := km.Reconcile(ctx, testOrg)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if recorded || key.ID != v1.ID {
		t.Errorf("Reconcile = %s recorded=%v, want %s unchanged", key.ID, recorded, v1.ID)
	}
	if n := store.count("RotateKey"); n != 1 {
		t.Errorf("RotateKey called %d times, want 1", n)
	}
}

func TestKeyManager_Archive(t *testing.T) {
	km, _, _ := newTestKeyManager()
	ctx := context.Background()

	v1, _ := km.EnsureActiveKey(ctx, testOrg)

	if _, err := km.Archive(ctx, testOrg, v1.ID); !errors.Is(err, models.ErrKeyStillActive) {
		t.Fatalf("archive active key: err = %v, want ErrKeyStillActive", err)
	}

	if _, err := km.Rotate(ctx, testOrg); err != nil {
		t.Fatalf("Rotate: %v", err)
	}

	archived, err := km.Archive(ctx, testOrg, v1.ID)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if archived.ArchivedAt == nil {
		t.Error("archived_at not set")
	}
}

func TestKeyManager_RotateFailureRecordsNoKey(t *testing.T) {
	store := &memKeyStore{}
	km := NewKeyManager(store, failingSecrets{}, time.Second, testLogger())

	_, err := km.Rotate(context.Background(), testOrg)
	if err == nil {
		t.Fatal("expected error from failing secret store")
	}
	if len(store.keys) != 0 {
		t.Errorf("keys = %d, want 0", len(store.keys))
	}
}

type failingSecrets struct{}

var errSecretStoreDown = errors.New("secret store unavailable")

func (failingSecrets) GenerateKeypair(context.Context, string) (ed25519.PublicKey, error) {
	return nil, errSecretStoreDown
}

func (failingSecrets) PublicKey(context.Context, string) (ed25519.PublicKey, error) {
	return nil, errSecretStoreDown
}

func (failingSecrets) Sign(context.Context, string, []byte) ([]byte, error) {
	return nil, errSecretStoreDown
}
