package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// LockoutPolicy bounds failed authentication attempts per API key.
type LockoutPolicy struct {
	MaxAttempts int
	Window      time.Duration
	Lockout     time.Duration
}

// DefaultLockoutPolicy locks a key for 5 minutes after 5 failures in 15 minutes.
var DefaultLockoutPolicy = LockoutPolicy{MaxAttempts: 5, Window: 15 * time.Minute, Lockout: 5 * time.Minute}

const (
	lockoutCleanup    = 60 * time.Second
	lockoutMaxRecords = 10000
)

type failureRecord struct {
	attempts  int
	firstFail time.Time
	lockedAt  time.Time
}

// BruteForceGuard tracks authentication failures per API key hash.
type BruteForceGuard struct {
	policy  LockoutPolicy
	mu      sync.Mutex
	records map[string]*failureRecord
	log     *logrus.Logger
}

// NewBruteForceGuard creates a guard with DefaultLockoutPolicy. Its cleanup
// goroutine stops when ctx is cancelled.
func NewBruteForceGuard(ctx context.Context, log *logrus.Logger) *BruteForceGuard {
	return NewBruteForceGuardWithPolicy(ctx, DefaultLockoutPolicy, log)
}

// NewBruteForceGuardWithPolicy creates a guard with a custom policy.
func NewBruteForceGuardWithPolicy(ctx context.Context, policy LockoutPolicy, log *logrus.Logger) *BruteForceGuard {
	g := &BruteForceGuard{
		policy:  policy,
		records: make(map[string]*failureRecord),
		log:     log,
	}
	go g.cleanupLoop(ctx)
	return g
}

func keyHash(apiKey string) string {
	h := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(h[:])
}

// IsBlocked reports whether apiKey is locked out.
func (g *BruteForceGuard) IsBlocked(apiKey string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	rec, ok := g.records[keyHash(apiKey)]
	return ok && !rec.lockedAt.IsZero() && time.Since(rec.lockedAt) < g.policy.Lockout
}

// RecordFailure counts one failed attempt for apiKey.
func (g *BruteForceGuard) RecordFailure(apiKey string) {
	kh := keyHash(apiKey)
	now := time.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	rec, ok := g.records[kh]
	if !ok || now.Sub(rec.firstFail) > g.policy.Window {
		g.records[kh] = &failureRecord{attempts: 1, firstFail: now}
		return
	}

	rec.attempts++
	if rec.attempts >= g.policy.MaxAttempts && rec.lockedAt.IsZero() {
		rec.lockedAt = now
		g.log.WithField("key_hash", kh[:16]+"...").Warn("api key locked out after repeated auth failures")
	}
}

// ResetKey clears the failures of apiKey after a successful authentication.
func (g *BruteForceGuard) ResetKey(apiKey string) {
	g.mu.Lock()
	delete(g.records, keyHash(apiKey))
	g.mu.Unlock()
}

func (g *BruteForceGuard) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(lockoutCleanup)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			g.mu.Lock()
			g.sweepLocked(now)
			g.mu.Unlock()
		}
	}
}

// sweepLocked drops expired lockouts and stale windows, then the oldest
// records beyond the cap. Caller holds g.mu.
func (g *BruteForceGuard) sweepLocked(now time.Time) {
	for k, rec := range g.records {
		lockExpired := !rec.lockedAt.IsZero() && now.Sub(rec.lockedAt) >= g.policy.Lockout
		if lockExpired || (rec.lockedAt.IsZero() && now.Sub(rec.firstFail) >= g.policy.Window) {
			delete(g.records, k)
		}
	}

	excess := len(g.records) - lockoutMaxRecords
	if excess <= 0 {
		return
	}

	keys := make([]string, 0, len(g.records))
	for k := range g.records {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return g.records[keys[i]].firstFail.Before(g.records[keys[j]].firstFail)
	})
	for _, k := range keys[:excess] {
		delete(g.records, k)
	}
}

// BruteForceMiddleware rejects requests carrying a locked-out API key.
func BruteForceMiddleware(guard *BruteForceGuard) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey := ExtractBearerToken(c); apiKey != "" && guard.IsBlocked(apiKey) {
			respondError(c, http.StatusTooManyRequests, "rate_limited", "too many failed authentication attempts")
			return
		}

		c.Next()
	}
}
