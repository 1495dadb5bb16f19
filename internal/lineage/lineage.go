// Package lineage closes the reference graph of an audit pack and checks
// that no record in the pack points at a record outside it.
package lineage

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/persistorai/auditseal/internal/models"
)

// NodeKind classifies a business record in the lineage graph.
type NodeKind string

// Node kinds.
const (
	KindTimeEntry       NodeKind = "time_entry"
	KindTimeCorrection  NodeKind = "time_correction"
	KindApproval        NodeKind = "approval"
	KindApprovalRequest NodeKind = "approval_request"
	KindTimelineEvent   NodeKind = "timeline_event"
)

// Node is one business record. Links are the ids of records it references,
// e.g. a correction links to the entry it corrects.
type Node struct {
	ID         string          `json:"id"`
	Kind       NodeKind        `json:"kind"`
	OccurredAt time.Time       `json:"occurred_at"`
	Links      []string        `json:"links,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// CoverageInput is the input of the coverage check.
type CoverageInput struct {
	NodeIDs           []string
	RequiredLinkedIDs []string
}

// CoverageResult lists the required ids missing from the node set, sorted.
type CoverageResult struct {
	IsValid          bool     `json:"is_valid"`
	MissingLinkedIDs []string `json:"missing_linked_ids"`
}

// Verify computes RequiredLinkedIDs \ NodeIDs. It is order independent and
// never reports the same missing id twice.
func Verify(in CoverageInput) CoverageResult {
	have := make(map[string]struct{}, len(in.NodeIDs))
	for _, id := range in.NodeIDs {
		have[id] = struct{}{}
	}

	missingSet := make(map[string]struct{})
	for _, id := range in.RequiredLinkedIDs {
		if _, ok := have[id]; !ok {
			missingSet[id] = struct{}{}
		}
	}

	missing := make([]string, 0, len(missingSet))
	for id := range missingSet {
		missing = append(missing, id)
	}

	sort.Strings(missing)

	return CoverageResult{IsValid: len(missing) == 0, MissingLinkedIDs: missing}
}

// IncompleteError names the ids that keep a lineage graph from closing.
type IncompleteError struct {
	Missing []string
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("%s: missing %d linked record(s): %s",
		models.ErrLineageIncomplete, len(e.Missing), strings.Join(e.Missing, ", "))
}

// Unwrap lets errors.Is match models.ErrLineageIncomplete.
func (e *IncompleteError) Unwrap() error { return models.ErrLineageIncomplete }

// Check runs Verify over nodes and returns an *IncompleteError when the graph is open.
func Check(nodes []Node) error {
	ids := make([]string, len(nodes))

	var required []string
	for i, n := range nodes {
		ids[i] = n.ID
		required = append(required, n.Links...)
	}

	res := Verify(CoverageInput{NodeIDs: ids, RequiredLinkedIDs: required})
	if !res.IsValid {
		return &IncompleteError{Missing: res.MissingLinkedIDs}
	}

	return nil
}

// Counts tallies nodes by category for the pack artifact.
type Counts struct {
	Entries     int
	Corrections int
	Approvals   int
	Timeline    int
}

// Count tallies nodes by kind.
func Count(nodes []Node) Counts {
	var c Counts

	for _, n := range nodes {
		switch n.Kind {
		case KindTimeEntry:
			c.Entries++
		case KindTimeCorrection:
			c.Corrections++
		case KindApproval, KindApprovalRequest:
			c.Approvals++
		case KindTimelineEvent:
			c.Timeline++
		}
	}

	return c
}
