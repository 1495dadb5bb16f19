package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for input validation. These are rejected before any
// state machine transition happens.
var (
	ErrInvalidSource     = errors.New("source reference must name exactly one of data_export, payroll_job or audit_pack")
	ErrMissingSourceID   = errors.New("source id is required")
	ErrEmptyFileSet      = errors.New("file set is empty")
	ErrDuplicateFilePath = errors.New("duplicate file path in file set")
	ErrInvalidDateRange  = errors.New("start date must not be after end date")
	ErrInvalidRetention  = errors.New("invalid retention policy")
)

// Sentinel errors for entity lookups.
var (
	ErrPackageNotFound     = errors.New("package not found")
	ErrPackRequestNotFound = errors.New("pack request not found")
	ErrKeyNotFound         = errors.New("signing key not found")
	ErrNoActiveKey         = errors.New("organization has no active signing key")
	ErrConfigNotFound      = errors.New("audit export config not found")
	ErrObjectNotFound      = errors.New("object not found")
	ErrFileNotFound        = errors.New("file not found in package")
)

// Sentinel errors for state and policy violations.
var (
	ErrConfigDisabled     = errors.New("audit export is disabled for this organization")
	ErrIllegalTransition  = errors.New("illegal state transition")
	ErrPackageNotSealed   = errors.New("package is not sealed")
	ErrStaleTransition    = errors.New("state changed concurrently")
	ErrKeyStillActive     = errors.New("active signing key cannot be archived")
	ErrKeyAlreadyArchived = errors.New("signing key already archived")
	ErrRetentionActive    = errors.New("object is under active retention")
	ErrRetentionDowngrade = errors.New("retention cannot be shortened or downgraded")
	ErrLineageIncomplete  = errors.New("lineage is not closed")
	ErrQueueFull          = errors.New("build queue is full")
)

// ErrFieldTooLong returns an error indicating a field exceeds its maximum length.
func ErrFieldTooLong(field string, maxLen int) error {
	return fmt.Errorf("%s exceeds maximum length of %d", field, maxLen)
}
