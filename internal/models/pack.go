package models

import (
	"fmt"
	"time"
)

// PackStatus is a state of the audit pack state machine.
type PackStatus string

// Pack states in order. Completed and failed are terminal.
const (
	PackRequested        PackStatus = "requested"
	PackCollecting       PackStatus = "collecting"
	PackLineageExpanding PackStatus = "lineage_expanding"
	PackAssembling       PackStatus = "assembling"
	PackHardening        PackStatus = "hardening"
	PackCompleted        PackStatus = "completed"
	PackFailed           PackStatus = "failed"
)

var packNext = map[PackStatus]PackStatus{
	PackRequested:        PackCollecting,
	PackCollecting:       PackLineageExpanding,
	PackLineageExpanding: PackAssembling,
	PackAssembling:       PackHardening,
	PackHardening:        PackCompleted,
}

// Terminal reports whether no transition leaves s.
func (s PackStatus) Terminal() bool {
	return s == PackCompleted || s == PackFailed
}

// Next returns the forward successor of s.
func (s PackStatus) Next() (PackStatus, error) {
	next, ok := packNext[s]
	if !ok {
		return "", fmt.Errorf("%w: no successor for pack state %q", ErrIllegalTransition, s)
	}

	return next, nil
}

// CanTransitionPack reports whether from -> to is legal.
func CanTransitionPack(from, to PackStatus) bool {
	if from.Terminal() {
		return false
	}

	if to == PackFailed {
		return true
	}

	return packNext[from] == to
}

// Pack failure codes.
const (
	PackErrCollection = "COLLECTION_FAILED"
	PackErrExpansion  = "EXPANSION_FAILED"
	PackErrLineage    = "LINEAGE_INCOMPLETE"
	PackErrAssembly   = "ASSEMBLY_FAILED"
	PackErrHardening  = "HARDENING_FAILED"
)

// PackRequest is an ad-hoc compliance pack over a date range.
type PackRequest struct {
	ID           string     `json:"id"`
	OrgID        string     `json:"org_id"`
	StartDate    time.Time  `json:"start_date"`
	EndDate      time.Time  `json:"end_date"`
	RequestedBy  string     `json:"requested_by,omitempty"`
	Status       PackStatus `json:"status"`
	ErrorCode    string     `json:"error_code,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// PackArtifact summarises a completed pack. Created only on success.
type PackArtifact struct {
	ID                  string    `json:"id"`
	RequestID           string    `json:"request_id"`
	PackageID           string    `json:"package_id"`
	EntryCount          int       `json:"entry_count"`
	CorrectionNodeCount int       `json:"correction_node_count"`
	ApprovalEventCount  int       `json:"approval_event_count"`
	TimelineEventCount  int       `json:"timeline_event_count"`
	ExpandedNodeCount   int       `json:"expanded_node_count"`
	CreatedAt           time.Time `json:"created_at"`
}

// CreatePackRequest is the payload for requesting a new audit pack.
type CreatePackRequest struct {
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

// Validate checks the date range against maxDays (0 disables the cap).
func (r *CreatePackRequest) Validate(maxDays int) error {
	if r.StartDate.IsZero() || r.EndDate.IsZero() {
		return fmt.Errorf("%w: start_date and end_date are required", ErrInvalidDateRange)
	}

	if r.StartDate.After(r.EndDate) {
		return ErrInvalidDateRange
	}

	if maxDays > 0 && r.EndDate.Sub(r.StartDate) > time.Duration(maxDays)*24*time.Hour {
		return fmt.Errorf("%w: range exceeds %d days", ErrInvalidDateRange, maxDays)
	}

	return nil
}

// PackListOpts filters pack listings.
type PackListOpts struct {
	Status PackStatus
	Limit  int
	Offset int
}
