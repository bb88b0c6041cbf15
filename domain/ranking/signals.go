// Package ranking holds the feed scoring model: signal helpers, the scoring
// strategies, the slug registry and explanation building.
package ranking

import (
	"context"
	"iter"
	"math"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"feedrank/domain/core/valueobjects"
)

const (
	// DefaultMaxAge is the window after which time decay reaches zero
	DefaultMaxAge = 168 * time.Hour

	wordsPerMinute          = 200.0
	engagementSaturation    = 100.0
	mutualSaturation        = 10.0
	neutralCredibility      = 0.5
	complexWordMinLength    = 8
	longContentThreshold    = 200
	clickbaitPenaltyTrigger = 0.7
)

// SocialGraph answers viewer/author relationship questions.
// Implementations may fail; callers degrade failures to neutral values.
type SocialGraph interface {
	IsFollowing(ctx context.Context, viewerID, authorID string) (bool, error)
	EngagementCount(ctx context.Context, viewerID, authorID string) (int, error)
	MutualConnectionCount(ctx context.Context, viewerID, authorID string) (int, error)
}

// Hints are optional request context a strategy may consult
type Hints struct {
	TimeOfDay string `json:"timeOfDay,omitempty"`
	Location  string `json:"location,omitempty"`
	Device    string `json:"device,omitempty"`
}

// ScoringContext is everything a strategy may read besides the item itself
type ScoringContext struct {
	ViewerID string
	Now      time.Time
	Hints    Hints
	Graph    SocialGraph

	// OnSignalError is notified when a lookup fails and a neutral value is used
	OnSignalError func(signal string, err error)
}

func (sc ScoringContext) now() time.Time {
	if sc.Now.IsZero() {
		return time.Now()
	}
	return sc.Now
}

func (sc ScoringContext) signalFailed(signal string, err error) {
	if sc.OnSignalError != nil {
		sc.OnSignalError(signal, err)
	}
}

// FollowLevel is 1.0 when the viewer is the author or follows the author, else 0
func FollowLevel(ctx context.Context, sc ScoringContext, authorID string) float64 {
	if sc.ViewerID == "" || authorID == "" {
		return 0
	}
	if sc.ViewerID == authorID {
		return 1
	}
	if sc.Graph == nil {
		return 0
	}
	following, err := sc.Graph.IsFollowing(ctx, sc.ViewerID, authorID)
	if err != nil {
		sc.signalFailed(valueobjects.SignalFollowLevel, err)
		return 0
	}
	if following {
		return 1
	}
	return 0
}

// EngagementHistory is the viewer's likes plus comments on the author's posts, /100, capped at 1
func EngagementHistory(ctx context.Context, sc ScoringContext, authorID string) float64 {
	if sc.ViewerID == "" || authorID == "" || sc.Graph == nil {
		return 0
	}
	count, err := sc.Graph.EngagementCount(ctx, sc.ViewerID, authorID)
	if err != nil {
		sc.signalFailed(valueobjects.SignalEngagementHistory, err)
		return 0
	}
	return math.Min(float64(count)/engagementSaturation, 1)
}

// MutualConnections is the number of viewer followees the author also follows, /10, capped at 1
func MutualConnections(ctx context.Context, sc ScoringContext, authorID string) float64 {
	if sc.ViewerID == "" || authorID == "" || sc.Graph == nil {
		return 0
	}
	count, err := sc.Graph.MutualConnectionCount(ctx, sc.ViewerID, authorID)
	if err != nil {
		sc.signalFailed(valueobjects.SignalMutualConnections, err)
		return 0
	}
	return math.Min(float64(count)/mutualSaturation, 1)
}

// TimeDecay is exp(-hours/(maxAge/2)) within maxAge and 0 beyond it
func TimeDecay(createdAt, now time.Time, maxAge time.Duration) float64 {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	age := now.Sub(createdAt)
	if age < 0 {
		age = 0
	}
	if age > maxAge {
		return 0
	}
	return math.Exp(-age.Hours() / (maxAge.Hours() / 2))
}

var hashtagPattern = regexp.MustCompile(`#(\w+)`)

// ExtractHashtags lazily yields lowercase tags matched by #word
func ExtractHashtags(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		rest := text
		for {
			loc := hashtagPattern.FindStringSubmatchIndex(rest)
			if loc == nil {
				return
			}
			if !yield(strings.ToLower(rest[loc[2]:loc[3]])) {
				return
			}
			rest = rest[loc[1]:]
		}
	}
}

var clickbaitPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)you won'?t believe`),
	regexp.MustCompile(`(?i)blow your mind`),
	regexp.MustCompile(`(?i)number \d+ will shock you`),
	regexp.MustCompile(`(?i)\bbefore\b.*\bafter\b`),
	regexp.MustCompile(`(?i)the reason why`),
	regexp.MustCompile(`(?i)everyone is losing it`),
	regexp.MustCompile(`(?i)\b(?:secret|hidden)\b`),
}

// DetectClickbait scores sensational phrasing and excess punctuation in [0,1]
func DetectClickbait(text string) float64 {
	score := 0.0
	for _, p := range clickbaitPatterns {
		if p.MatchString(text) {
			score += 0.2
		}
	}
	if n := strings.Count(text, "!"); n > 2 {
		score += 0.1 * float64(n-2)
	}
	if n := strings.Count(text, "?"); n > 3 {
		score += 0.05 * float64(n-3)
	}
	return math.Min(score, 1)
}

// ReadingTimeMinutes estimates reading time at 200 words per minute
func ReadingTimeMinutes(text string) float64 {
	return float64(len(strings.Fields(text))) / wordsPerMinute
}

// AssessContentQuality applies length, structure, vocabulary and discussion heuristics
func AssessContentQuality(item valueobjects.ContentItem) float64 {
	text := item.Body
	score := 0.5

	if utf8.RuneCountInString(text) > longContentThreshold {
		score += 0.2
	}
	if strings.Contains(text, "?") && strings.Contains(strings.ToLower(text), "because") {
		score += 0.1
	}

	complexWords := 0
	for _, w := range strings.Fields(text) {
		if utf8.RuneCountInString(w) >= complexWordMinLength {
			complexWords++
		}
	}
	if complexWords > 3 {
		score += 0.1
	}

	if item.CommentCount > 5 {
		score += 0.1
	}
	if DetectClickbait(text) > clickbaitPenaltyTrigger {
		score -= 0.3
	}
	if strings.Contains(text, "!!!") || strings.Contains(text, "??") {
		score -= 0.1
	}

	return valueobjects.Clamp01(score)
}

// SourceCredibility is 0.5, plus 0.3 for verified authors, plus 0.1 per account year up to 0.2
func SourceCredibility(author valueobjects.AuthorProfile, now time.Time) float64 {
	score := neutralCredibility
	if author.Verified {
		score += 0.3
	}
	score += math.Min(author.AccountAgeYears(now)*0.1, 0.2)
	return valueobjects.Clamp01(score)
}
