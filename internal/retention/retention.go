// Package retention evaluates write-once retention policy for sealed archives.
//
// Governance retention can be lifted by a privileged bypass. Compliance
// retention cannot be lifted, shortened or downgraded by anyone until it
// expires.
package retention

import (
	"fmt"
	"time"

	"github.com/persistorai/auditseal/internal/models"
)

// Until returns the retention date for a package created at createdAt.
// Calendar arithmetic: Feb 29 plus one year normalises to Mar 1.
func Until(createdAt time.Time, years int) time.Time {
	return createdAt.AddDate(years, 0, 0)
}

// Decision is the outcome of evaluating an org's policy for one package.
type Decision struct {
	Apply  bool
	Mode   models.RetentionMode
	Until  time.Time
	Reason string
}

// Evaluate decides whether an object lock is applied to a package archive.
// Until is always computed so the package records its retention date even
// when no lock is placed.
func Evaluate(cfg *models.AuditExportConfig, lockSupported bool, createdAt time.Time) Decision {
	d := Decision{
		Mode:  cfg.RetentionMode,
		Until: Until(createdAt, cfg.RetentionYears),
	}

	switch {
	case !cfg.WORMEnabled:
		d.Reason = "worm retention disabled by policy"
	case !lockSupported:
		d.Reason = "object store does not support object lock"
	case !cfg.RetentionMode.Valid():
		d.Reason = fmt.Sprintf("unknown retention mode %q", cfg.RetentionMode)
	default:
		d.Apply = true
	}

	return d
}

// Active reports whether state still protects its object at now.
func Active(state *models.RetentionState, now time.Time) bool {
	return state != nil && state.Until.After(now)
}

// CheckDelete returns ErrRetentionActive when deleting an object under state is not allowed.
func CheckDelete(state *models.RetentionState, now time.Time, bypassGovernance bool) error {
	if !Active(state, now) {
		return nil
	}

	if state.Mode == models.RetentionGovernance && bypassGovernance {
		return nil
	}

	return fmt.Errorf("%w: %s retention until %s", models.ErrRetentionActive, state.Mode, state.Until.UTC().Format(time.RFC3339))
}

// CheckReplace returns an error when replacing current with next would
// weaken an active retention. Extending the date or upgrading governance to
// compliance is always allowed.
func CheckReplace(current *models.RetentionState, next models.RetentionState, now time.Time, bypassGovernance bool) error {
	if !next.Mode.Valid() {
		return fmt.Errorf("%w: unknown mode %q", models.ErrInvalidRetention, next.Mode)
	}

	if !Active(current, now) {
		return nil
	}

	if current.Mode == models.RetentionGovernance && bypassGovernance {
		return nil
	}

	if current.Mode == models.RetentionCompliance && next.Mode != models.RetentionCompliance {
		return fmt.Errorf("%w: compliance cannot become %s", models.ErrRetentionDowngrade, next.Mode)
	}

	if next.Until.Before(current.Until) {
		return fmt.Errorf("%w: %s is before %s", models.ErrRetentionDowngrade,
			next.Until.UTC().Format(time.RFC3339), current.Until.UTC().Format(time.RFC3339))
	}

	return nil
}

// Matches reports whether the observed state satisfies the recorded lock:
// same mode and a retention date no earlier than recorded.
func Matches(observed *models.RetentionState, mode models.RetentionMode, until time.Time) bool {
	if observed == nil {
		return false
	}

	return observed.Mode == mode && !observed.Until.Before(until.Truncate(time.Second))
}
