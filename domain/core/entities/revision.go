package entities

import "time"

// Revision is an immutable snapshot of an algorithm definition taken before an update
type Revision struct {
	ID          string            `json:"id"`
	AlgorithmID string            `json:"algorithmId"`
	Version     string            `json:"version"`
	Definition  AlgorithmSnapshot `json:"definition"`
	Checksum    string            `json:"checksum"`
	EditorID    string            `json:"editorId"`
	ChangeNotes string            `json:"changeNotes,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}
