// Package models defines the domain types of the audit export pipeline.
package models

import (
	"fmt"
	"time"
)

// RetentionMode is the object-lock mode applied to sealed archives.
type RetentionMode string

// Retention modes. Governance can be bypassed by a privileged action,
// compliance cannot be bypassed by anyone until it expires.
const (
	RetentionGovernance RetentionMode = "governance"
	RetentionCompliance RetentionMode = "compliance"
)

// Valid reports whether m is a known retention mode.
func (m RetentionMode) Valid() bool {
	return m == RetentionGovernance || m == RetentionCompliance
}

// Retention bounds accepted for RetentionYears.
const (
	MinRetentionYears     = 1
	MaxRetentionYears     = 30
	DefaultRetentionYears = 10
)

// AuditExportConfig is the per-organization audit export policy.
// There is exactly one row per organization; it is soft-disabled, never deleted.
type AuditExportConfig struct {
	ID                    string        `json:"id"`
	OrgID                 string        `json:"org_id"`
	RetentionYears        int           `json:"retention_years"`
	RetentionMode         RetentionMode `json:"retention_mode"`
	WORMEnabled           bool          `json:"worm_enabled"`
	ObjectLockSupported   bool          `json:"object_lock_supported"`
	AutoExportPayroll     bool          `json:"auto_export_payroll"`
	AutoExportDataExports bool          `json:"auto_export_data_exports"`
	IsEnabled             bool          `json:"is_enabled"`
	CreatedAt             time.Time     `json:"created_at"`
	UpdatedAt             time.Time     `json:"updated_at"`
}

// UpsertConfigRequest is the admin payload for opting in or changing policy.
// Nil fields keep their current value (or the default on first opt-in).
type UpsertConfigRequest struct {
	RetentionYears        *int           `json:"retention_years,omitempty"`
	RetentionMode         *RetentionMode `json:"retention_mode,omitempty"`
	WORMEnabled           *bool          `json:"worm_enabled,omitempty"`
	AutoExportPayroll     *bool          `json:"auto_export_payroll,omitempty"`
	AutoExportDataExports *bool          `json:"auto_export_data_exports,omitempty"`
}

// Validate checks the bounds of the provided fields.
func (r *UpsertConfigRequest) Validate() error {
	if r.RetentionYears != nil && (*r.RetentionYears < MinRetentionYears || *r.RetentionYears > MaxRetentionYears) {
		return fmt.Errorf("%w: retention_years must be between %d and %d", ErrInvalidRetention, MinRetentionYears, MaxRetentionYears)
	}

	if r.RetentionMode != nil && !r.RetentionMode.Valid() {
		return fmt.Errorf("%w: retention_mode must be governance or compliance, got %q", ErrInvalidRetention, *r.RetentionMode)
	}

	return nil
}

// Apply merges the request onto cfg. cfg is modified in place.
func (r *UpsertConfigRequest) Apply(cfg *AuditExportConfig) {
	if r.RetentionYears != nil {
		cfg.RetentionYears = *r.RetentionYears
	}
	if r.RetentionMode != nil {
		cfg.RetentionMode = *r.RetentionMode
	}
	if r.WORMEnabled != nil {
		cfg.WORMEnabled = *r.WORMEnabled
	}
	if r.AutoExportPayroll != nil {
		cfg.AutoExportPayroll = *r.AutoExportPayroll
	}
	if r.AutoExportDataExports != nil {
		cfg.AutoExportDataExports = *r.AutoExportDataExports
	}
}

// DefaultConfig returns the policy a new organization opts into.
func DefaultConfig(orgID string) AuditExportConfig {
	return AuditExportConfig{
		OrgID:          orgID,
		RetentionYears: DefaultRetentionYears,
		RetentionMode:  RetentionCompliance,
		WORMEnabled:    true,
		IsEnabled:      true,
	}
}

// RetentionState is the object-lock state of one stored object.
type RetentionState struct {
	Mode  RetentionMode `json:"mode"`
	Until time.Time     `json:"until"`
}
