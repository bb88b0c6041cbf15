package ranking

import (
	"sort"

	"feedrank/domain/core/valueobjects"
)

// ScoredItem pairs an item with its score
type ScoredItem struct {
	Item   valueobjects.ContentItem `json:"item"`
	Result ScoreResult              `json:"result"`
}

// Sort orders items by score descending, then newest first, then post id ascending,
// giving a total order so pagination is reproducible.
func Sort(items []ScoredItem) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Result.Score != b.Result.Score {
			return a.Result.Score > b.Result.Score
		}
		if !a.Item.CreatedAt.Equal(b.Item.CreatedAt) {
			return a.Item.CreatedAt.After(b.Item.CreatedAt)
		}
		return a.Item.ID < b.Item.ID
	})
}

// Page returns items[offset : offset+limit], clamped to bounds
func Page(items []ScoredItem, offset, limit int) []ScoredItem {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) || limit <= 0 {
		return []ScoredItem{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
