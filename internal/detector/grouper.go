package detector

import (
	"fmt"
	"sort"

	"golang-dedup-service/internal/models"
)

// Grouper clusters pairwise matches into duplicate groups. Transitive
// membership is resolved with a union-find over transaction ids, so A-B and
// B-C matches place all three transactions in one group even when the A-C
// pair was never scored.
type Grouper struct{}

// NewGrouper creates a Grouper.
func NewGrouper() *Grouper {
	return &Grouper{}
}

// groupMeta tracks per-component state on the union-find root. The strongest
// match that touched a component fixes its primary id and confidence, which
// is why matches must be processed in descending confidence order.
type groupMeta struct {
	primaryID  string
	confidence float64
}

// Group builds duplicate groups from the given matches. Matches are processed
// strongest first; every transaction referenced by a match lands in exactly
// one group, and every group has at least two members.
func (g *Grouper) Group(matches []*models.DuplicateMatch) []*models.DuplicateGroup {
	if len(matches) == 0 {
		return nil
	}

	sorted := make([]*models.DuplicateMatch, len(matches))
	copy(sorted, matches)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	uf := newUnionFind()
	meta := make(map[string]*groupMeta)
	transactions := make(map[string]*models.Transaction)

	for _, match := range sorted {
		transactions[match.PrimaryID] = match.Primary
		transactions[match.DuplicateID] = match.Duplicate

		rootA := uf.find(match.PrimaryID)
		rootB := uf.find(match.DuplicateID)

		metaA := meta[rootA]
		metaB := meta[rootB]

		root := uf.union(rootA, rootB)

		// The strongest evidence seen for the merged component wins. Since
		// matches arrive in descending confidence order, any existing meta
		// outranks the current match.
		switch {
		case metaA != nil && metaB != nil:
			if metaB.confidence > metaA.confidence {
				metaA = metaB
			}
			meta[root] = metaA
		case metaA != nil:
			meta[root] = metaA
		case metaB != nil:
			meta[root] = metaB
		default:
			meta[root] = &groupMeta{
				primaryID:  match.PrimaryID,
				confidence: match.Confidence,
			}
		}
	}

	members := make(map[string][]*models.Transaction)
	for id, tx := range transactions {
		root := uf.find(id)
		members[root] = append(members[root], tx)
	}

	groups := make([]*models.DuplicateGroup, 0, len(members))
	for root, txs := range members {
		m := meta[root]

		sort.SliceStable(txs, func(i, j int) bool {
			if !txs[i].Date.Equal(txs[j].Date) {
				return txs[i].Date.Before(txs[j].Date)
			}
			return txs[i].ID < txs[j].ID
		})

		group := &models.DuplicateGroup{
			GroupID:      fmt.Sprintf("DUP_%s", m.primaryID),
			Transactions: txs,
			Confidence:   m.confidence,
			PrimaryID:    m.primaryID,
			ReviewStatus: models.ReviewPending,
		}
		group.RecomputeAggregates()
		groups = append(groups, group)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].Confidence != groups[j].Confidence {
			return groups[i].Confidence > groups[j].Confidence
		}
		return groups[i].GroupID < groups[j].GroupID
	})

	return groups
}

// unionFind is a disjoint-set structure over transaction ids with path
// compression and union by size.
type unionFind struct {
	parent map[string]string
	size   map[string]int
}

func newUnionFind() *unionFind {
	return &unionFind{
		parent: make(map[string]string),
		size:   make(map[string]int),
	}
}

// find returns the root of id's component, registering the id on first sight.
func (uf *unionFind) find(id string) string {
	if _, ok := uf.parent[id]; !ok {
		uf.parent[id] = id
		uf.size[id] = 1
		return id
	}

	root := id
	for uf.parent[root] != root {
		root = uf.parent[root]
	}

	for uf.parent[id] != root {
		id, uf.parent[id] = uf.parent[id], root
	}

	return root
}

// union joins the two components and returns the surviving root.
func (uf *unionFind) union(a, b string) string {
	rootA := uf.find(a)
	rootB := uf.find(b)
	if rootA == rootB {
		return rootA
	}

	if uf.size[rootA] < uf.size[rootB] {
		rootA, rootB = rootB, rootA
	}

	uf.parent[rootB] = rootA
	uf.size[rootA] += uf.size[rootB]
	return rootA
}
