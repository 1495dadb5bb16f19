package lineage_test

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/persistorai/auditseal/internal/lineage"
	"github.com/persistorai/auditseal/internal/models"
)

func TestVerify_Examples(t *testing.T) {
	tests := []struct {
		name        string
		in          lineage.CoverageInput
		wantValid   bool
		wantMissing []string
	}{
		{
			name:        "missing one",
			in:          lineage.CoverageInput{NodeIDs: []string{"b"}, RequiredLinkedIDs: []string{"a", "b"}},
			wantMissing: []string{"a"},
		},
		{
			name:      "superset closes",
			in:        lineage.CoverageInput{NodeIDs: []string{"a", "b", "c"}, RequiredLinkedIDs: []string{"a", "b"}},
			wantValid: true,
		},
		{
			name:        "duplicates reported once",
			in:          lineage.CoverageInput{NodeIDs: []string{"b"}, RequiredLinkedIDs: []string{"a", "a", "b", "a"}},
			wantMissing: []string{"a"},
		},
		{
			name:        "order independent and sorted",
			in:          lineage.CoverageInput{NodeIDs: nil, RequiredLinkedIDs: []string{"z", "m", "a"}},
			wantMissing: []string{"a", "m", "z"},
		},
		{
			name:      "nothing required",
			in:        lineage.CoverageInput{NodeIDs: []string{"a"}},
			wantValid: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := lineage.Verify(tc.in)

			if got.IsValid != tc.wantValid {
				t.Errorf("IsValid = %v, want %v", got.IsValid, tc.wantValid)
			}

			want := tc.wantMissing
			if want == nil {
				want = []string{}
			}
			if !reflect.DeepEqual(got.MissingLinkedIDs, want) {
				t.Errorf("missing = %v, want %v", got.MissingLinkedIDs, want)
			}
		})
	}
}

func TestCheck_IncompleteError(t *testing.T) {
	nodes := []lineage.Node{
		{ID: "c1", Kind: lineage.KindTimeCorrection, Links: []string{"e1", "e2"}},
		{ID: "e1", Kind: lineage.KindTimeEntry},
	}

	err := lineage.Check(nodes)
	if !errors.Is(err, models.ErrLineageIncomplete) {
		t.Fatalf("err = %v, want ErrLineageIncomplete", err)
	}

	var ie *lineage.IncompleteError
	if !errors.As(err, &ie) || !reflect.DeepEqual(ie.Missing, []string{"e2"}) {
		t.Errorf("missing = %+v, want [e2]", ie)
	}
}

// graphResolver serves nodes from a fixed graph and records calls.
type graphResolver struct {
	mu      sync.Mutex
	nodes   map[string]lineage.Node
	calls   int
	failErr error
}

func newGraph(nodes ...lineage.Node) *graphResolver {
	g := &graphResolver{nodes: map[string]lineage.Node{}}
	for _, n := range nodes {
		g.nodes[n.ID] = n
	}

	return g
}

func (g *graphResolver) FetchNodes(_ context.Context, _ string, ids []string) ([]lineage.Node, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.calls++
	if g.failErr != nil {
		return nil, g.failErr
	}

	var out []lineage.Node
	for _, id := range ids {
		if n, ok := g.nodes[id]; ok {
			out = append(out, n)
		}
	}

	return out, nil
}

func (g *graphResolver) FetchDependents(_ context.Context, _ string, ids []string) ([]lineage.Node, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.calls++

	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}

	var out []lineage.Node
	for _, n := range g.nodes {
		for _, l := range n.Links {
			if want[l] {
				out = append(out, n)
				break
			}
		}
	}

	return out, nil
}

func TestExpand_ClosesGraphInBothDirections(t *testing.T) {
	entry := lineage.Node{ID: "e1", Kind: lineage.KindTimeEntry}
	correction := lineage.Node{ID: "c1", Kind: lineage.KindTimeCorrection, Links: []string{"e1"}}
	request := lineage.Node{ID: "r1", Kind: lineage.KindApprovalRequest, Links: []string{"c1"}}
	approval := lineage.Node{ID: "a1", Kind: lineage.KindApproval, Links: []string{"r1"}}
	event := lineage.Node{ID: "t1", Kind: lineage.KindTimelineEvent, Links: []string{"a1"}}

	g := newGraph(entry, correction, request, approval, event)

	// Collected: only the approval. Expansion must walk forward to the entry
	// and backward to the timeline event.
	exp, err := lineage.Expand(context.Background(), "org", []lineage.Node{approval}, g, 100)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}

	ids := exp.NodeIDs()
	if !reflect.DeepEqual(ids, []string{"a1", "c1", "e1", "r1", "t1"}) {
		t.Errorf("nodes = %v", ids)
	}
	if exp.PrimaryCount != 1 || exp.ExpandedCount != 4 {
		t.Errorf("primary=%d expanded=%d, want 1 and 4", exp.PrimaryCount, exp.ExpandedCount)
	}

	res := lineage.Verify(lineage.CoverageInput{NodeIDs: ids, RequiredLinkedIDs: exp.RequiredLinkedIDs()})
	if !res.IsValid {
		t.Errorf("closed graph reported missing %v", res.MissingLinkedIDs)
	}

	c := lineage.Count(exp.Nodes)
	if c.Entries != 1 || c.Corrections != 1 || c.Approvals != 2 || c.Timeline != 1 {
		t.Errorf("counts = %+v", c)
	}
}

func TestExpand_DanglingLinkIsReportedByCoverage(t *testing.T) {
	correction := lineage.Node{ID: "c1", Kind: lineage.KindTimeCorrection, Links: []string{"gone"}}
	g := newGraph(correction)

	exp, err := lineage.Expand(context.Background(), "org", []lineage.Node{correction}, g, 100)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}

	if err := lineage.Check(exp.Nodes); !errors.Is(err, models.ErrLineageIncomplete) {
		t.Fatalf("err = %v, want ErrLineageIncomplete", err)
	}
}

func TestExpand_DedupesPrimary(t *testing.T) {
	e := lineage.Node{ID: "e1", Kind: lineage.KindTimeEntry}

	exp, err := lineage.Expand(context.Background(), "org", []lineage.Node{e, e}, newGraph(e), 0)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}

	if len(exp.Nodes) != 1 || exp.PrimaryCount != 1 || exp.ExpandedCount != 0 {
		t.Errorf("expansion = %+v", exp)
	}
}

func TestExpand_Limit(t *testing.T) {
	var nodes []lineage.Node
	prev := ""
	for _, id := range []string{"n1", "n2", "n3", "n4", "n5"} {
		n := lineage.Node{ID: id, Kind: lineage.KindTimeEntry}
		if prev != "" {
			n.Links = []string{prev}
		}
		nodes = append(nodes, n)
		prev = id
	}

	_, err := lineage.Expand(context.Background(), "org", nodes[4:], newGraph(nodes...), 3)
	if !errors.Is(err, lineage.ErrExpansionLimit) {
		t.Fatalf("err = %v, want ErrExpansionLimit", err)
	}
}

func TestExpand_LimitCountsPrimary(t *testing.T) {
	primary := []lineage.Node{
		{ID: "e1", Kind: lineage.KindTimeEntry},
		{ID: "e2", Kind: lineage.KindTimeEntry},
		{ID: "e3", Kind: lineage.KindTimeEntry},
	}
	g := newGraph(primary...)

	_, err := lineage.Expand(context.Background(), "org", primary, g, 2)
	if !errors.Is(err, lineage.ErrExpansionLimit) {
		t.Fatalf("err = %v, want ErrExpansionLimit", err)
	}
	if g.calls != 0 {
		t.Errorf("resolver called %d times before the limit was applied", g.calls)
	}
}

func TestExpand_ResolverError(t *testing.T) {
	g := newGraph()
	g.failErr = errors.New("upstream down")

	_, err := lineage.Expand(context.Background(), "org", []lineage.Node{{ID: "c", Links: []string{"x"}}}, g, 10)
	if !errors.Is(err, g.failErr) {
		t.Fatalf("err = %v", err)
	}
}
