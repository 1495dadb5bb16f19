package models

import "time"

// Verification check names, in the order the engine runs them.
const (
	CheckFileHashes = "file_hashes"
	CheckMerkleRoot = "merkle_root"
	CheckSignature  = "signature"
	CheckTimestamp  = "timestamp"
	CheckWORMLock   = "worm_lock"
)

// Verification sources.
const (
	VerifySourceAPI       = "api"
	VerifySourceCLI       = "cli"
	VerifySourceScheduled = "scheduled"
)

// CheckError describes one failed verification check.
type CheckError struct {
	Check    string `json:"check"`
	Message  string `json:"message"`
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`
}

// VerificationLog is the append-only record of one verification attempt.
type VerificationLog struct {
	ID              string       `json:"id"`
	PackageID       string       `json:"package_id"`
	OrgID           string       `json:"org_id"`
	IsValid         bool         `json:"is_valid"`
	ChecksPerformed []string     `json:"checks_performed"`
	ChecksPassed    []string     `json:"checks_passed"`
	ChecksFailed    []string     `json:"checks_failed"`
	ErrorDetails    []CheckError `json:"error_details"`
	VerifiedBy      string       `json:"verified_by,omitempty"`
	Source          string       `json:"source"`
	VerifiedAt      time.Time    `json:"verified_at"`
}

// VerificationReport is what the engine returns to its caller: the log row
// plus per-file detail that is too large to persist.
type VerificationReport struct {
	VerificationLog
	FileMismatches []FileMismatch `json:"file_mismatches,omitempty"`
}

// FileMismatch names one file whose recomputed digest disagrees with the manifest.
type FileMismatch struct {
	FilePath string `json:"file_path"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

// Record appends the outcome of one check, keeping the invariant
// len(ChecksPerformed) == len(ChecksPassed) + len(ChecksFailed).
// A nil failure marks the check as passed.
func (l *VerificationLog) Record(check string, failure *CheckError) {
	l.ChecksPerformed = append(l.ChecksPerformed, check)

	if failure == nil {
		l.ChecksPassed = append(l.ChecksPassed, check)
		return
	}

	failure.Check = check
	l.ChecksFailed = append(l.ChecksFailed, check)
	l.ErrorDetails = append(l.ErrorDetails, *failure)
}

// Finalize computes IsValid as the conjunction of all performed checks.
// A run that performed no check at all is not valid.
func (l *VerificationLog) Finalize() {
	l.IsValid = len(l.ChecksPerformed) > 0 && len(l.ChecksFailed) == 0
	if l.ChecksPassed == nil {
		l.ChecksPassed = []string{}
	}
	if l.ChecksFailed == nil {
		l.ChecksFailed = []string{}
	}
	if l.ErrorDetails == nil {
		l.ErrorDetails = []CheckError{}
	}
}
