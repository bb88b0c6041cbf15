package events

import (
	"time"
)

// DomainEvent is the base interface for all domain events
// Events represent something that has happened in the past
type DomainEvent interface {
	GetAggregateID() string
	GetEventType() string
	GetTimestamp() time.Time
	GetVersion() int
}

// BaseEvent provides common event fields
type BaseEvent struct {
	AggregateID string    `json:"aggregate_id"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
	Version     int       `json:"version"`
}

func (e BaseEvent) GetAggregateID() string  { return e.AggregateID }
func (e BaseEvent) GetEventType() string    { return e.EventType }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e BaseEvent) GetVersion() int         { return e.Version }

// Event type names published on the event bus
const (
	TypeAlgorithmCreated     = "algorithm.created"
	TypeAlgorithmUpdated     = "algorithm.updated"
	TypeAlgorithmDeleted     = "algorithm.deleted"
	TypeAlgorithmInstalled   = "algorithm.installed"
	TypeAlgorithmUninstalled = "algorithm.uninstalled"
	TypeAlgorithmActivated   = "algorithm.activated"
	TypeAlgorithmRated       = "algorithm.rated"
)

func newBase(aggregateID, eventType string, timestamp time.Time) BaseEvent {
	return BaseEvent{
		AggregateID: aggregateID,
		EventType:   eventType,
		Timestamp:   timestamp,
		Version:     1,
	}
}

// Algorithm Events

// AlgorithmCreated is raised when a user publishes a new algorithm
type AlgorithmCreated struct {
	BaseEvent
	AlgorithmID string `json:"algorithm_id"`
	AuthorID    string `json:"author_id"`
	Slug        string `json:"slug"`
	IsPublic    bool   `json:"is_public"`
}

// NewAlgorithmCreated creates an AlgorithmCreated event
func NewAlgorithmCreated(algorithmID, authorID, slug string, isPublic bool, timestamp time.Time) AlgorithmCreated {
	return AlgorithmCreated{
		BaseEvent:   newBase(algorithmID, TypeAlgorithmCreated, timestamp),
		AlgorithmID: algorithmID,
		AuthorID:    authorID,
		Slug:        slug,
		IsPublic:    isPublic,
	}
}

// AlgorithmUpdated is raised when an algorithm definition changes and a revision is recorded
type AlgorithmUpdated struct {
	BaseEvent
	AlgorithmID string `json:"algorithm_id"`
	AuthorID    string `json:"author_id"`
	OldVersion  string `json:"old_version"`
	NewVersion  string `json:"new_version"`
	ChangeNotes string `json:"change_notes,omitempty"`
}

// NewAlgorithmUpdated creates an AlgorithmUpdated event
func NewAlgorithmUpdated(algorithmID, authorID, oldVersion, newVersion, notes string, timestamp time.Time) AlgorithmUpdated {
	return AlgorithmUpdated{
		BaseEvent:   newBase(algorithmID, TypeAlgorithmUpdated, timestamp),
		AlgorithmID: algorithmID,
		AuthorID:    authorID,
		OldVersion:  oldVersion,
		NewVersion:  newVersion,
		ChangeNotes: notes,
	}
}

// AlgorithmDeleted is raised after an algorithm and its installs are removed
type AlgorithmDeleted struct {
	BaseEvent
	AlgorithmID     string `json:"algorithm_id"`
	AuthorID        string `json:"author_id"`
	RemovedInstalls int    `json:"removed_installs"`
}

// NewAlgorithmDeleted creates an AlgorithmDeleted event
func NewAlgorithmDeleted(algorithmID, authorID string, removedInstalls int, timestamp time.Time) AlgorithmDeleted {
	return AlgorithmDeleted{
		BaseEvent:       newBase(algorithmID, TypeAlgorithmDeleted, timestamp),
		AlgorithmID:     algorithmID,
		AuthorID:        authorID,
		RemovedInstalls: removedInstalls,
	}
}

// AlgorithmInstalled is raised when a user adds an algorithm to their library
type AlgorithmInstalled struct {
	BaseEvent
	AlgorithmID string `json:"algorithm_id"`
	UserID      string `json:"user_id"`
	Reinstall   bool   `json:"reinstall"`
}

// NewAlgorithmInstalled creates an AlgorithmInstalled event
func NewAlgorithmInstalled(algorithmID, userID string, reinstall bool, timestamp time.Time) AlgorithmInstalled {
	return AlgorithmInstalled{
		BaseEvent:   newBase(algorithmID, TypeAlgorithmInstalled, timestamp),
		AlgorithmID: algorithmID,
		UserID:      userID,
		Reinstall:   reinstall,
	}
}

// AlgorithmUninstalled is raised when a user removes an algorithm
type AlgorithmUninstalled struct {
	BaseEvent
	AlgorithmID string `json:"algorithm_id"`
	UserID      string `json:"user_id"`
	WasActive   bool   `json:"was_active"`
}

// NewAlgorithmUninstalled creates an AlgorithmUninstalled event
func NewAlgorithmUninstalled(algorithmID, userID string, wasActive bool, timestamp time.Time) AlgorithmUninstalled {
	return AlgorithmUninstalled{
		BaseEvent:   newBase(algorithmID, TypeAlgorithmUninstalled, timestamp),
		AlgorithmID: algorithmID,
		UserID:      userID,
		WasActive:   wasActive,
	}
}

// AlgorithmActivated is raised when a user switches their active feed algorithm
type AlgorithmActivated struct {
	BaseEvent
	AlgorithmID         string `json:"algorithm_id"`
	UserID              string `json:"user_id"`
	PreviousAlgorithmID string `json:"previous_algorithm_id,omitempty"`
}

// NewAlgorithmActivated creates an AlgorithmActivated event
func NewAlgorithmActivated(algorithmID, userID, previousID string, timestamp time.Time) AlgorithmActivated {
	return AlgorithmActivated{
		BaseEvent:           newBase(algorithmID, TypeAlgorithmActivated, timestamp),
		AlgorithmID:         algorithmID,
		UserID:              userID,
		PreviousAlgorithmID: previousID,
	}
}

// AlgorithmRated is raised when a rating is recorded and the average recomputed
type AlgorithmRated struct {
	BaseEvent
	AlgorithmID   string  `json:"algorithm_id"`
	UserID        string  `json:"user_id"`
	Rating        int     `json:"rating"`
	AverageRating float64 `json:"average_rating"`
	RatingCount   int     `json:"rating_count"`
}

// NewAlgorithmRated creates an AlgorithmRated event
func NewAlgorithmRated(algorithmID, userID string, rating int, average float64, count int, timestamp time.Time) AlgorithmRated {
	return AlgorithmRated{
		BaseEvent:     newBase(algorithmID, TypeAlgorithmRated, timestamp),
		AlgorithmID:   algorithmID,
		UserID:        userID,
		Rating:        rating,
		AverageRating: average,
		RatingCount:   count,
	}
}
