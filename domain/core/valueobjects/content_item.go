package valueobjects

import "time"

// AuthorProfile carries the author display attributes a ranking strategy may consult
type AuthorProfile struct {
	ID               string    `json:"id"`
	DisplayName      string    `json:"displayName"`
	Username         string    `json:"username,omitempty"`
	AvatarURL        string    `json:"avatarUrl,omitempty"`
	Verified         bool      `json:"verified"`
	AccountCreatedAt time.Time `json:"accountCreatedAt,omitempty"`
}

// AccountAgeYears returns the author's account age in years relative to now
func (p AuthorProfile) AccountAgeYears(now time.Time) float64 {
	if p.AccountCreatedAt.IsZero() || now.Before(p.AccountCreatedAt) {
		return 0
	}
	return now.Sub(p.AccountCreatedAt).Hours() / (24 * 365)
}

// ContentItem is the canonical post representation scored by the ranking pipeline.
// Strategies receive it by value and never modify it.
type ContentItem struct {
	ID             string        `json:"id"`
	Body           string        `json:"body"`
	CreatedAt      time.Time     `json:"createdAt"`
	AuthorID       string        `json:"authorId"`
	Author         AuthorProfile `json:"author"`
	LikeCount      int           `json:"likeCount"`
	CommentCount   int           `json:"commentCount"`
	ViewerHasLiked bool          `json:"viewerHasLiked"`
}

// Age returns how long ago the item was created; never negative
func (c ContentItem) Age(now time.Time) time.Duration {
	if now.Before(c.CreatedAt) {
		return 0
	}
	return now.Sub(c.CreatedAt)
}
