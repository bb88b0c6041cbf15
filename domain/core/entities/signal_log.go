package entities

import (
	"time"

	"feedrank/domain/core/valueobjects"
)

// SignalLog is the audit record of how one item was scored for one viewer
type SignalLog struct {
	ID          string                `json:"id"`
	UserID      string                `json:"userId,omitempty"`
	PostID      string                `json:"postId"`
	AlgorithmID string                `json:"algorithmId"`
	Score       float64               `json:"score"`
	Rank        int                   `json:"rank"`
	Signals     []valueobjects.Signal `json:"signals"`
	CreatedAt   time.Time             `json:"createdAt"`
}
