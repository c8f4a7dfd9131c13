package reconcile

import (
	"strings"
	"time"

	"github.com/antzucaro/matchr"

	"github.com/fieldops-ai/fieldops/internal/fieldops"
)

// defaultMatchThreshold is the minimum Jaro-Winkler similarity for a fuzzy
// name match to count as resolved.
const defaultMatchThreshold = 0.85

// resolveJob finds the job a candidate refers to: exact ID when present,
// fuzzy customer-name match otherwise.
func (r *Reconciler) resolveJob(jobs []fieldops.Job, id, hint string) (*fieldops.Job, bool) {
	if id != "" {
		for i := range jobs {
			if jobs[i].ID == id {
				return &jobs[i], true
			}
		}
		return nil, false
	}

	var (
		best      *fieldops.Job
		bestScore float64
	)
	for i := range jobs {
		score := nameSimilarity(hint, jobs[i].Customer)
		if score < r.matchThreshold || score < bestScore {
			continue
		}
		// Equal scores resolve to the most recently updated entity.
		if score == bestScore && best != nil && !jobs[i].UpdatedAt.After(best.UpdatedAt) {
			continue
		}
		best, bestScore = &jobs[i], score
	}
	return best, best != nil
}

// resolveItem finds the inventory item a candidate refers to.
func (r *Reconciler) resolveItem(items []fieldops.InventoryItem, id, hint string) (*fieldops.InventoryItem, bool) {
	if id != "" {
		for i := range items {
			if items[i].ID == id {
				return &items[i], true
			}
		}
		return nil, false
	}

	var (
		best      *fieldops.InventoryItem
		bestScore float64
		bestTime  time.Time
	)
	for i := range items {
		score := nameSimilarity(hint, items[i].Name)
		if score < r.matchThreshold || score < bestScore {
			continue
		}
		if score == bestScore && best != nil && !items[i].UpdatedAt.After(bestTime) {
			continue
		}
		best, bestScore, bestTime = &items[i], score, items[i].UpdatedAt
	}
	return best, best != nil
}

// nameSimilarity scores hint against name, case-insensitive and
// whitespace-normalised. Three comparison strategies cover multi-word
// mismatches: full strings, space-stripped strings, and the best pairwise
// token score ("filters" vs "oil filter").
func nameSimilarity(hint, name string) float64 {
	hintNorm := normalizeName(hint)
	nameNorm := normalizeName(name)
	if hintNorm == "" || nameNorm == "" {
		return 0
	}
	if hintNorm == nameNorm {
		return 1
	}

	score := matchr.JaroWinkler(hintNorm, nameNorm, false)

	hintTokens := strings.Fields(hintNorm)
	nameTokens := strings.Fields(nameNorm)
	if len(hintTokens) > 1 || len(nameTokens) > 1 {
		if s := matchr.JaroWinkler(strings.Join(hintTokens, ""), strings.Join(nameTokens, ""), false); s > score {
			score = s
		}
	}
	for _, ht := range hintTokens {
		for _, nt := range nameTokens {
			if s := matchr.JaroWinkler(ht, nt, false); s > score {
				score = s
			}
		}
	}
	return score
}

// normalizeName lower-cases s and collapses interior whitespace.
func normalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
