// Package dynamodb implements the storage ports on a single DynamoDB table.
package dynamodb

import (
	"time"

	"go.uber.org/zap"

	"feedrank/application/ports"
)

// Store binds the repositories to one table
type Store struct {
	client    API
	tableName string
	indexName string
	logger    *zap.Logger
	now       func() time.Time

	// signalLogTTL bounds how long audit rows are kept
	signalLogTTL time.Duration
}

// NewStore creates a store over tableName. indexName is the overloaded GSI1.
func NewStore(client API, tableName, indexName string, logger *zap.Logger) *Store {
	return &Store{
		client:       client,
		tableName:    tableName,
		indexName:    indexName,
		logger:       logger,
		now:          time.Now,
		signalLogTTL: 30 * 24 * time.Hour,
	}
}

// Algorithms returns the store as an AlgorithmRepository
func (s *Store) Algorithms() ports.AlgorithmRepository { return &AlgorithmRepository{s} }

// Preferences returns the store as a PreferenceRepository
func (s *Store) Preferences() ports.PreferenceRepository { return &PreferenceRepository{s} }

// Ratings returns the store as a RatingRepository
func (s *Store) Ratings() ports.RatingRepository { return &RatingRepository{s} }

// Revisions returns the store as a RevisionRepository
func (s *Store) Revisions() ports.RevisionRepository { return &RevisionRepository{s} }

// SignalLogs returns the store as a SignalLogRepository
func (s *Store) SignalLogs() ports.SignalLogRepository { return &SignalLogRepository{s} }
