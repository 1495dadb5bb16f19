package models

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// SourceKind identifies what a package was built from.
type SourceKind string

// Source kinds.
const (
	SourceDataExport SourceKind = "data_export"
	SourcePayrollJob SourceKind = "payroll_job"
	SourceAuditPack  SourceKind = "audit_pack"
)

// SourceRef references exactly one source of a package. The fields are
// unexported so a value can only be built through the constructors or by
// decoding a validated JSON object.
type SourceRef struct {
	kind SourceKind
	id   string
}

// DataExportSource references a data export.
func DataExportSource(id string) SourceRef { return SourceRef{kind: SourceDataExport, id: id} }

// PayrollJobSource references a payroll export job.
func PayrollJobSource(id string) SourceRef { return SourceRef{kind: SourcePayrollJob, id: id} }

// AuditPackSource references an audit pack request.
func AuditPackSource(id string) SourceRef { return SourceRef{kind: SourceAuditPack, id: id} }

// NewSourceRef builds a SourceRef from a kind string and id, validating both.
func NewSourceRef(kind, id string) (SourceRef, error) {
	ref := SourceRef{kind: SourceKind(kind), id: id}
	if err := ref.Validate(); err != nil {
		return SourceRef{}, err
	}

	return ref, nil
}

// Kind returns the source kind.
func (s SourceRef) Kind() SourceKind { return s.kind }

// ID returns the referenced id.
func (s SourceRef) ID() string { return s.id }

// IsZero reports whether s was never set.
func (s SourceRef) IsZero() bool { return s.kind == "" && s.id == "" }

// Validate checks the kind is known and the id is a UUID.
func (s SourceRef) Validate() error {
	switch s.kind {
	case SourceDataExport, SourcePayrollJob, SourceAuditPack:
	default:
		return ErrInvalidSource
	}

	if s.id == "" {
		return ErrMissingSourceID
	}

	if _, err := uuid.Parse(s.id); err != nil {
		return fmt.Errorf("source id must be a UUID: %w", err)
	}

	return nil
}

// String returns "kind:id".
func (s SourceRef) String() string { return string(s.kind) + ":" + s.id }

type sourceRefJSON struct {
	Kind SourceKind `json:"kind"`
	ID   string     `json:"id"`
}

// MarshalJSON implements json.Marshaler. The zero reference encodes as null.
func (s SourceRef) MarshalJSON() ([]byte, error) {
	if s.IsZero() {
		return []byte("null"), nil
	}

	return json.Marshal(sourceRefJSON{Kind: s.kind, ID: s.id})
}

// UnmarshalJSON implements json.Unmarshaler and rejects invalid references.
// null leaves the reference unchanged.
func (s *SourceRef) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}

	var raw sourceRefJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	ref := SourceRef{kind: raw.Kind, id: raw.ID}
	if err := ref.Validate(); err != nil {
		return err
	}

	*s = ref

	return nil
}

// Columns splits the reference into the three mutually exclusive nullable
// columns used by the audit_export_packages table.
func (s SourceRef) Columns() (dataExportID, payrollJobID, auditPackID *string) {
	id := s.id

	switch s.kind {
	case SourceDataExport:
		return &id, nil, nil
	case SourcePayrollJob:
		return nil, &id, nil
	case SourceAuditPack:
		return nil, nil, &id
	}

	return nil, nil, nil
}

// SourceFromColumns is the inverse of Columns. Exactly one argument must be non-nil.
func SourceFromColumns(dataExportID, payrollJobID, auditPackID *string) (SourceRef, error) {
	var set []SourceRef

	if dataExportID != nil {
		set = append(set, DataExportSource(*dataExportID))
	}
	if payrollJobID != nil {
		set = append(set, PayrollJobSource(*payrollJobID))
	}
	if auditPackID != nil {
		set = append(set, AuditPackSource(*auditPackID))
	}

	if len(set) != 1 {
		return SourceRef{}, ErrInvalidSource
	}

	return set[0], nil
}
