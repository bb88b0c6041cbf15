package ports

import (
	"context"
	"time"

	"feedrank/domain/core/entities"
	"feedrank/domain/core/valueobjects"
	"feedrank/domain/events"
)

// AlgorithmFilter narrows catalog listings
type AlgorithmFilter struct {
	CategorySlug string
	OfficialOnly bool
	Search       string
	AuthorID     string
	// IncludePrivateFor includes that user's private algorithms alongside public ones
	IncludePrivateFor string
	Limit             int
}

// AlgorithmRepository persists algorithm definitions.
// This is a port in hexagonal architecture - the domain doesn't know about the implementation
type AlgorithmRepository interface {
	// Save creates or replaces an algorithm. The slug must be unique.
	Save(ctx context.Context, algorithm *entities.Algorithm) error

	// GetByID retrieves an algorithm by its ID
	GetByID(ctx context.Context, id valueobjects.AlgorithmID) (*entities.Algorithm, error)

	// GetBySlug retrieves an algorithm by its unique slug
	GetBySlug(ctx context.Context, slug string) (*entities.Algorithm, error)

	// List returns algorithms matching the filter, most installed first
	List(ctx context.Context, filter AlgorithmFilter) ([]*entities.Algorithm, error)

	// UpdateRatingStats stores a recomputed rating aggregate
	UpdateRatingStats(ctx context.Context, id valueobjects.AlgorithmID, average float64, count int) error

	// Delete removes an algorithm definition
	Delete(ctx context.Context, id valueobjects.AlgorithmID) error
}

// PreferenceRepository persists per-user installs and the single active pointer.
// Install and Uninstall change the preference and the algorithm's install count
// together; SetActive replaces the active pointer in one write.
type PreferenceRepository interface {
	// Install upserts the (user, algorithm) preference; created reports a new row
	Install(ctx context.Context, pref *entities.Preference) (created bool, err error)

	// Uninstall removes the preference and clears the active pointer if it pointed at it
	Uninstall(ctx context.Context, userID string, algorithmID valueobjects.AlgorithmID) (wasActive bool, err error)

	// Get returns one preference with IsActive populated
	Get(ctx context.Context, userID string, algorithmID valueobjects.AlgorithmID) (*entities.Preference, error)

	// ListByUser returns a user's installed preferences with IsActive populated
	ListByUser(ctx context.Context, userID string) ([]*entities.Preference, error)

	// GetActive returns the user's active preference, or a not-found error
	GetActive(ctx context.Context, userID string) (*entities.Preference, error)

	// SetActive points the user's active algorithm at algorithmID and returns the previous one
	SetActive(ctx context.Context, userID string, algorithmID valueobjects.AlgorithmID) (previous string, err error)

	// CountInstalls returns the number of users that installed the algorithm
	CountInstalls(ctx context.Context, algorithmID valueobjects.AlgorithmID) (int, error)

	// DeleteByAlgorithm removes every install of an algorithm and any active pointers to it
	DeleteByAlgorithm(ctx context.Context, algorithmID valueobjects.AlgorithmID) (int, error)
}

// RatingRepository persists algorithm ratings
type RatingRepository interface {
	// Upsert stores the user's rating, replacing any previous one
	Upsert(ctx context.Context, rating *entities.Rating) error

	// ListByAlgorithm returns every rating for an algorithm
	ListByAlgorithm(ctx context.Context, algorithmID valueobjects.AlgorithmID) ([]*entities.Rating, error)

	// DeleteByAlgorithm removes all ratings for an algorithm
	DeleteByAlgorithm(ctx context.Context, algorithmID valueobjects.AlgorithmID) error
}

// RevisionRepository persists immutable algorithm revisions
type RevisionRepository interface {
	// Save appends a revision
	Save(ctx context.Context, revision *entities.Revision) error

	// ListByAlgorithm returns revisions newest first
	ListByAlgorithm(ctx context.Context, algorithmID valueobjects.AlgorithmID, limit int) ([]*entities.Revision, error)

	// Prune keeps the newest keep revisions and deletes the rest
	Prune(ctx context.Context, algorithmID valueobjects.AlgorithmID, keep int) (int, error)

	// DeleteByAlgorithm removes all revisions for an algorithm
	DeleteByAlgorithm(ctx context.Context, algorithmID valueobjects.AlgorithmID) error
}

// SignalLogRepository persists scoring audit rows
type SignalLogRepository interface {
	// SaveBatch stores a batch of signal logs
	SaveBatch(ctx context.Context, logs []*entities.SignalLog) error
}

// Post is a raw candidate row from the content store
type Post struct {
	ID        string
	Body      string
	AuthorID  string
	CreatedAt time.Time
}

// EngagementCounts are per-post like and comment totals
type EngagementCounts struct {
	Likes    int
	Comments int
}

// ContentSource reads posts and the social graph from the content store
type ContentSource interface {
	// RecentPosts returns up to limit posts, newest first
	RecentPosts(ctx context.Context, limit int) ([]Post, error)

	// Profiles returns author profiles keyed by author id
	Profiles(ctx context.Context, authorIDs []string) (map[string]valueobjects.AuthorProfile, error)

	// EngagementCounts returns like/comment totals keyed by post id
	EngagementCounts(ctx context.Context, postIDs []string) (map[string]EngagementCounts, error)

	// LikedBy returns the subset of postIDs the viewer has liked
	LikedBy(ctx context.Context, viewerID string, postIDs []string) (map[string]bool, error)

	// Following returns the ids the user follows
	Following(ctx context.Context, userID string) ([]string, error)

	// FollowingOf returns, for each given user, the ids they follow
	FollowingOf(ctx context.Context, userIDs []string) (map[string][]string, error)

	// EngagementByAuthor counts the viewer's likes plus comments on each author's posts
	EngagementByAuthor(ctx context.Context, viewerID string, authorIDs []string) (map[string]int, error)
}

// EventPublisher defines the interface for publishing domain events
type EventPublisher interface {
	// Publish sends a single event
	Publish(ctx context.Context, event events.DomainEvent) error

	// PublishBatch sends multiple events
	PublishBatch(ctx context.Context, events []events.DomainEvent) error
}

// Cache defines the interface for caching
type Cache interface {
	// Get retrieves a value from cache
	Get(ctx context.Context, key string) (string, bool)

	// Set stores a value in cache with a TTL
	Set(ctx context.Context, key string, value string, ttl time.Duration) error

	// Delete removes a value from cache
	Delete(ctx context.Context, key string) error
}

// MetricsRecorder receives operational counters from the application layer
type MetricsRecorder interface {
	// FeedGenerated records one completed feed request
	FeedGenerated(algorithm string, fallback bool, duration time.Duration, items int)

	// SignalFailed records a signal lookup that degraded to its neutral value
	SignalFailed(signal string)

	// AuditDropped records audit rows discarded because the queue was full or retries ran out
	AuditDropped(reason string, n int)
}

// FallbackFeed supplies the fixed dataset served when the live feed cannot be built
type FallbackFeed interface {
	// Posts returns the seeded items with timestamps relative to now
	Posts(now time.Time) []valueobjects.ContentItem
}
