package entities

import (
	"fmt"
	"time"

	pkgerrors "feedrank/pkg/errors"
)

// Rating bounds
const (
	MinRating = 1
	MaxRating = 5
)

// Rating is one user's score for an algorithm; a user holds at most one per algorithm
type Rating struct {
	UserID      string    `json:"userId"`
	AlgorithmID string    `json:"algorithmId"`
	Rating      int       `json:"rating"`
	Review      string    `json:"review,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// NewRating validates and builds a rating
func NewRating(userID, algorithmID string, value int, review string, now time.Time) (*Rating, error) {
	if userID == "" || algorithmID == "" {
		return nil, pkgerrors.NewValidationError("userID and algorithmID are required")
	}
	if value < MinRating || value > MaxRating {
		return nil, pkgerrors.NewValidationError(
			fmt.Sprintf("rating must be between %d and %d", MinRating, MaxRating),
		).WithCode(pkgerrors.CodeInvalidRating).WithDetail("rating", value)
	}
	return &Rating{
		UserID:      userID,
		AlgorithmID: algorithmID,
		Rating:      value,
		Review:      review,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// AverageRating computes the mean and count of the given ratings
func AverageRating(ratings []*Rating) (float64, int) {
	if len(ratings) == 0 {
		return 0, 0
	}
	total := 0
	for _, r := range ratings {
		total += r.Rating
	}
	return float64(total) / float64(len(ratings)), len(ratings)
}
