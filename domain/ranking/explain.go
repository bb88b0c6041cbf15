package ranking

import (
	"fmt"
	"sort"
	"strings"

	"feedrank/domain/core/valueobjects"
)

// DefaultTopSignals is how many signals an explanation surfaces
const DefaultTopSignals = 3

// PostExplanation describes why one post was ranked where it was
type PostExplanation struct {
	PostID        string                `json:"postId"`
	TotalScore    float64               `json:"totalScore"`
	TopSignals    []valueobjects.Signal `json:"topSignals"`
	AlgorithmID   string                `json:"algorithmId"`
	AlgorithmName string                `json:"algorithmName"`
	Summary       string                `json:"summary"`
}

// TopSignals returns up to n signals ordered by descending contribution.
// Equal contributions keep name order so output is reproducible.
func TopSignals(signals []valueobjects.Signal, n int) []valueobjects.Signal {
	sorted := make([]valueobjects.Signal, len(signals))
	copy(sorted, signals)
	sort.SliceStable(sorted, func(i, j int) bool {
		ci, cj := sorted[i].Contribution(), sorted[j].Contribution()
		if ci != cj {
			return ci > cj
		}
		return sorted[i].Name < sorted[j].Name
	})
	if n > 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// Explain builds the explanation for a scored post
func Explain(postID string, result ScoreResult, algorithmID, algorithmName string, topN int) PostExplanation {
	if topN <= 0 {
		topN = DefaultTopSignals
	}
	top := TopSignals(result.Signals, topN)
	return PostExplanation{
		PostID:        postID,
		TotalScore:    result.Score,
		TopSignals:    top,
		AlgorithmID:   algorithmID,
		AlgorithmName: algorithmName,
		Summary:       summarize(top, algorithmName, result.Explanation),
	}
}

func summarize(top []valueobjects.Signal, algorithmName, note string) string {
	var b strings.Builder
	if len(top) == 0 || top[0].Contribution() == 0 {
		fmt.Fprintf(&b, "No strong ranking signals for this post under %s.", algorithmName)
	} else {
		fmt.Fprintf(&b, "%s contributed most (%.2f)", top[0].Name, top[0].Contribution())
		rest := make([]string, 0, len(top)-1)
		for _, s := range top[1:] {
			rest = append(rest, fmt.Sprintf("%s (%.2f)", s.Name, s.Contribution()))
		}
		if len(rest) > 0 {
			fmt.Fprintf(&b, ", followed by %s", strings.Join(rest, " and "))
		}
		fmt.Fprintf(&b, " under %s.", algorithmName)
	}
	if note != "" {
		b.WriteString(" ")
		b.WriteString(note)
	}
	return b.String()
}
