package attribution

import "github.com/kmorrill/receipt-budgeter/internal/money"

// Candidate is one item offered to the subset-sum resolver.
type Candidate struct {
	ID     string
	Amount money.Money
}

// emptyReach marks sum 0 as reachable with no candidates.
const emptyReach = -2

// FindSubset looks for one subset of candidates whose amounts sum exactly to
// target, using 0/1 subset-sum dynamic programming over [0, target] cents.
// reachedBy[s] records the index of the last candidate that made sum s
// reachable; scanning sums downward per candidate preserves the no-reuse
// constraint. Candidates are scanned in list order, which is the tie-break:
// among equal-sum subsets the one this scan finds first wins, so results are
// deterministic for identical inputs.
//
// Returns the chosen candidate ids and true, or nil and false when no exact
// subset exists. A zero target is satisfied by the empty subset. Candidates
// with zero or negative amounts never participate.
func FindSubset(target money.Money, candidates []Candidate) ([]string, bool) {
	if target < 0 {
		return nil, false
	}
	if target == 0 {
		return []string{}, true
	}

	n := int64(target)
	reachedBy := make([]int, n+1)
	for i := range reachedBy {
		reachedBy[i] = -1
	}
	reachedBy[0] = emptyReach

	for i, c := range candidates {
		amt := int64(c.Amount)
		if amt <= 0 {
			continue
		}
		for j := n; j >= amt; j-- {
			if reachedBy[j] == -1 && reachedBy[j-amt] != -1 {
				reachedBy[j] = i
			}
		}
	}

	if reachedBy[n] == -1 {
		return nil, false
	}

	// Walk backward from the target. Entries are written once and only when
	// the remainder was already reachable via a strictly earlier candidate,
	// so the walk terminates with each candidate used at most once.
	var ids []string
	for s := n; s > 0; {
		i := reachedBy[s]
		if i < 0 {
			// Unreachable if the table is consistent.
			return nil, false
		}
		ids = append(ids, candidates[i].ID)
		s -= int64(candidates[i].Amount)
	}
	return ids, true
}
