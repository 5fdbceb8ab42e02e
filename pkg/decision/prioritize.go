package decision

import "sort"

// Prioritize sorts decisions by score descending, breaking ties by job
// name ascending for determinism, and drops entries that are neither
// runnable nor deferred (currently only "disabled" produces one).
func Prioritize(decisions []Decision) []Decision {
	kept := make([]Decision, 0, len(decisions))

	for _, d := range decisions {
		if !d.ShouldRun && d.DeferUntil == nil {
			continue
		}

		kept = append(kept, d)
	}

	sort.SliceStable(kept, func(i, k int) bool {
		if kept[i].Score != kept[k].Score {
			return kept[i].Score > kept[k].Score
		}

		return kept[i].JobName < kept[k].JobName
	})

	return kept
}
