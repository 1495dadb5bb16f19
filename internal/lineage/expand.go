package lineage

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// ErrExpansionLimit is returned when the closed graph would exceed the node cap.
var ErrExpansionLimit = errors.New("lineage expansion exceeded node limit")

// Resolver fetches records by id and the records that reference them.
type Resolver interface {
	// FetchNodes returns the records with the given ids. Unknown ids are omitted.
	FetchNodes(ctx context.Context, orgID string, ids []string) ([]Node, error)
	// FetchDependents returns records whose links point at any of ids.
	FetchDependents(ctx context.Context, orgID string, ids []string) ([]Node, error)
}

// Expansion is the closed node set of a pack.
type Expansion struct {
	// Nodes are sorted by id.
	Nodes []Node
	// PrimaryCount is the number of distinct collected records.
	PrimaryCount int
	// ExpandedCount is the number of records pulled in by expansion.
	ExpandedCount int
}

// NodeIDs returns the ids of all nodes.
func (e *Expansion) NodeIDs() []string {
	ids := make([]string, len(e.Nodes))
	for i, n := range e.Nodes {
		ids[i] = n.ID
	}

	return ids
}

// RequiredLinkedIDs returns every link target in the set, possibly with duplicates.
func (e *Expansion) RequiredLinkedIDs() []string {
	var out []string
	for _, n := range e.Nodes {
		out = append(out, n.Links...)
	}

	return out
}

// Expand follows links in both directions from primary until no new record
// appears. Ids the resolver cannot produce are left out; the coverage check
// reports them.
func Expand(ctx context.Context, orgID string, primary []Node, r Resolver, maxNodes int) (*Expansion, error) {
	set := make(map[string]Node, len(primary))
	requested := make(map[string]bool)

	var frontier []Node
	for _, n := range primary {
		if _, ok := set[n.ID]; ok {
			continue
		}
		set[n.ID] = n
		requested[n.ID] = true
		frontier = append(frontier, n)
	}

	primaryCount := len(set)
	if maxNodes > 0 && primaryCount > maxNodes {
		return nil, fmt.Errorf("%w (%d)", ErrExpansionLimit, maxNodes)
	}

	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var forward, ids []string
		for _, n := range frontier {
			ids = append(ids, n.ID)
			for _, l := range n.Links {
				if !requested[l] {
					requested[l] = true
					forward = append(forward, l)
				}
			}
		}

		var found []Node

		if len(forward) > 0 {
			nodes, err := r.FetchNodes(ctx, orgID, forward)
			if err != nil {
				return nil, fmt.Errorf("fetching linked records: %w", err)
			}
			found = append(found, nodes...)
		}

		dependents, err := r.FetchDependents(ctx, orgID, ids)
		if err != nil {
			return nil, fmt.Errorf("fetching dependent records: %w", err)
		}
		found = append(found, dependents...)

		frontier = frontier[:0]
		for _, n := range found {
			if _, ok := set[n.ID]; ok {
				continue
			}

			set[n.ID] = n
			requested[n.ID] = true
			frontier = append(frontier, n)

			if maxNodes > 0 && len(set) > maxNodes {
				return nil, fmt.Errorf("%w (%d)", ErrExpansionLimit, maxNodes)
			}
		}
	}

	nodes := make([]Node, 0, len(set))
	for _, n := range set {
		nodes = append(nodes, n)
	}

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	return &Expansion{
		Nodes:         nodes,
		PrimaryCount:  primaryCount,
		ExpandedCount: len(nodes) - primaryCount,
	}, nil
}
