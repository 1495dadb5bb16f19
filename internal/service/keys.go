package service

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/auditseal/internal/domain"
	"github.com/persistorai/auditseal/internal/metrics"
	"github.com/persistorai/auditseal/internal/models"
	"github.com/persistorai/auditseal/internal/signing"
)

// errKeyDrift marks a signature made by a secret store key other than the
// recorded active key.
var errKeyDrift = errors.New("secret store key differs from the active key")

// KeyStore is the data-access interface KeyManager depends on.
type KeyStore = domain.KeyStore

// Signature is a package signature together with the key that made it.
type Signature struct {
	Key      *models.SigningKey
	Value    []byte
	SignedAt time.Time
}

// KeyManager owns the lifecycle of per-organization signing keys. Private
// halves stay in the secret store; this type only ever sees public keys
// and signatures.
type KeyManager struct {
	store   KeyStore
	secrets signing.SecretStore
	locks   *keyedMutex
	timeout time.Duration
	log     *logrus.Logger
}

// NewKeyManager creates a KeyManager. timeout bounds each secret store call.
func NewKeyManager(store KeyStore, secrets signing.SecretStore, timeout time.Duration, log *logrus.Logger) *KeyManager {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &KeyManager{
		store:   store,
		secrets: secrets,
		locks:   newKeyedMutex(),
		timeout: timeout,
		log:     log,
	}
}

// GetActiveKey returns the org's current key (pass-through).
func (m *KeyManager) GetActiveKey(ctx context.Context, orgID string) (*models.SigningKey, error) {
	return m.store.GetActiveKey(ctx, orgID)
}

// GetKey returns one key, active or historical (pass-through).
func (m *KeyManager) GetKey(ctx context.Context, orgID, keyID string) (*models.SigningKey, error) {
	return m.store.GetKey(ctx, orgID, keyID)
}

// ListKeys returns all keys of the org, newest first (pass-through).
func (m *KeyManager) ListKeys(ctx context.Context, orgID string) ([]models.SigningKey, error) {
	return m.store.ListKeys(ctx, orgID)
}

// EnsureActiveKey returns the active key, generating the first one if the
// org has none yet.
func (m *KeyManager) EnsureActiveKey(ctx context.Context, orgID string) (*models.SigningKey, error) {
	key, err := m.store.GetActiveKey(ctx, orgID)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, models.ErrNoActiveKey) {
		return nil, err
	}

	unlock := m.locks.Lock(orgID)
	defer unlock()

	// Another caller may have created it while we waited.
	key, err = m.store.GetActiveKey(ctx, orgID)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, models.ErrNoActiveKey) {
		return nil, err
	}

	return m.rotateLocked(ctx, orgID)
}

// Rotate generates a new keypair and makes it the org's only active key.
// The previous key stays on record so its packages remain verifiable.
func (m *KeyManager) Rotate(ctx context.Context, orgID string) (*models.SigningKey, error) {
	unlock := m.locks.Lock(orgID)
	defer unlock()

	return m.rotateLocked(ctx, orgID)
}

func (m *KeyManager) rotateLocked(ctx context.Context, orgID string) (*models.SigningKey, error) {
	generated := false

	key, err := m.store.RotateKey(ctx, orgID, func(ctx context.Context) (*models.NewSigningKey, error) {
		sctx, cancel := context.WithTimeout(ctx, m.timeout)
		defer cancel()

		pub, err := m.secrets.GenerateKeypair(sctx, orgID)
		if err != nil {
			return nil, fmt.Errorf("generating keypair: %w", err)
		}
		generated = true

		return newKeyMaterial(pub)
	})
	if err != nil {
		if generated {
			// The secret store already moved to the new key. Record it now
			// if the key table is reachable; Sign reconciles otherwise.
			if rec, _, rerr := m.reconcileLocked(ctx, orgID); rerr == nil {
				m.log.WithError(err).WithFields(logrus.Fields{
					"org_id":  orgID,
					"key_id":  rec.ID,
					"version": rec.Version,
				}).Warn("key rotation failed after generate, recorded secret store key")
				metrics.KeyRotationsTotal.Inc()

				return rec, nil
			}
		}

		return nil, fmt.Errorf("rotating signing key: %w", err)
	}

	metrics.KeyRotationsTotal.Inc()

	return key, nil
}

// Reconcile makes the key table agree with the secret store: when the
// store's current public key is not the recorded active key, it is recorded
// as the next version. The bool reports whether a key was recorded.
func (m *KeyManager) Reconcile(ctx context.Context, orgID string) (*models.SigningKey, bool, error) {
	unlock := m.locks.Lock(orgID)
	defer unlock()

	return m.reconcileLocked(ctx, orgID)
}

func (m *KeyManager) reconcileLocked(ctx context.Context, orgID string) (*models.SigningKey, bool, error) {
	sctx, cancel := context.WithTimeout(ctx, m.timeout)
	pub, err := m.secrets.PublicKey(sctx, orgID)
	cancel()
	if err != nil {
		return nil, false, fmt.Errorf("reading secret store public key: %w", err)
	}

	material, err := newKeyMaterial(pub)
	if err != nil {
		return nil, false, err
	}

	active, err := m.store.GetActiveKey(ctx, orgID)
	switch {
	case err == nil && active.Fingerprint == material.Fingerprint:
		return active, false, nil
	case err != nil && !errors.Is(err, models.ErrNoActiveKey):
		return nil, false, err
	}

	key, err := m.store.RotateKey(ctx, orgID, func(context.Context) (*models.NewSigningKey, error) {
		return material, nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("recording secret store key: %w", err)
	}

	m.log.WithFields(logrus.Fields{
		"org_id":      orgID,
		"key_id":      key.ID,
		"version":     key.Version,
		"fingerprint": key.Fingerprint,
	}).Warn("recorded secret store key as the active signing key")

	return key, true, nil
}

func newKeyMaterial(pub ed25519.PublicKey) (*models.NewSigningKey, error) {
	encoded, err := signing.EncodePublicKey(pub)
	if err != nil {
		return nil, err
	}

	fp, err := signing.Fingerprint(pub)
	if err != nil {
		return nil, err
	}

	return &models.NewSigningKey{PublicKey: encoded, Fingerprint: fp}, nil
}

// Archive marks a rotated key as archived. The row is kept.
func (m *KeyManager) Archive(ctx context.Context, orgID, keyID string) (*models.SigningKey, error) {
	return m.store.ArchiveKey(ctx, orgID, keyID)
}

// Sign signs payload with the org's active key. The returned signature is
// checked against the recorded active key before it is handed out. When the
// secret store has moved on to a key the table does not know, the table is
// reconciled once and the payload signed again.
func (m *KeyManager) Sign(ctx context.Context, orgID string, payload []byte) (*Signature, error) {
	sig, err := m.sign(ctx, orgID, payload)
	if !errors.Is(err, errKeyDrift) {
		return sig, err
	}

	if _, recorded, rerr := m.Reconcile(ctx, orgID); rerr != nil || !recorded {
		if rerr != nil {
			m.log.WithError(rerr).WithField("org_id", orgID).Error("reconciling signing key failed")
		}
		return nil, err
	}

	return m.sign(ctx, orgID, payload)
}

func (m *KeyManager) sign(ctx context.Context, orgID string, payload []byte) (*Signature, error) {
	unlock := m.locks.RLock(orgID)
	defer unlock()

	key, err := m.store.GetActiveKey(ctx, orgID)
	if err != nil {
		return nil, err
	}

	sctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	sig, err := m.secrets.Sign(sctx, orgID, payload)
	if err != nil {
		return nil, fmt.Errorf("signing with key v%d: %w", key.Version, err)
	}

	if err := signing.Verify(key.PublicKey, payload, sig); err != nil {
		m.log.WithFields(logrus.Fields{
			"org_id":  orgID,
			"key_id":  key.ID,
			"version": key.Version,
		}).Error("secret store signed with a key other than the recorded active key")

		return nil, fmt.Errorf("signature does not verify under active key v%d: %w: %w", key.Version, errKeyDrift, err)
	}

	return &Signature{Key: key, Value: sig, SignedAt: time.Now().UTC()}, nil
}

// Verify checks sig over payload against the specific key keyID, which need
// not be the org's active key.
func (m *KeyManager) Verify(ctx context.Context, orgID, keyID string, payload, sig []byte) error {
	key, err := m.store.GetKey(ctx, orgID, keyID)
	if err != nil {
		return err
	}

	return signing.Verify(key.PublicKey, payload, sig)
}
