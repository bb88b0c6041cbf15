package valueobjects

import (
	"errors"

	"github.com/google/uuid"
)

// AlgorithmID is a value object representing a unique algorithm identifier
type AlgorithmID struct {
	value string
}

// NewAlgorithmID creates a new random AlgorithmID
func NewAlgorithmID() AlgorithmID {
	return AlgorithmID{value: uuid.New().String()}
}

// NewAlgorithmIDFromString creates an AlgorithmID from an existing string.
// Official algorithms use stable, human-readable ids (e.g. "official-chronological"),
// so any non-empty value is accepted.
func NewAlgorithmIDFromString(id string) (AlgorithmID, error) {
	if id == "" {
		return AlgorithmID{}, errors.New("algorithm ID cannot be empty")
	}
	return AlgorithmID{value: id}, nil
}

// MustAlgorithmID is NewAlgorithmIDFromString for ids known to be valid; it panics on an empty id
func MustAlgorithmID(id string) AlgorithmID {
	algID, err := NewAlgorithmIDFromString(id)
	if err != nil {
		panic(err)
	}
	return algID
}

// String returns the string representation of the AlgorithmID
func (id AlgorithmID) String() string {
	return id.value
}

// Equals checks if two AlgorithmIDs are equal
func (id AlgorithmID) Equals(other AlgorithmID) bool {
	return id.value == other.value
}

// IsZero checks if the AlgorithmID is the zero value
func (id AlgorithmID) IsZero() bool {
	return id.value == ""
}

// MarshalJSON implements json.Marshaler
func (id AlgorithmID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + id.value + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler
func (id *AlgorithmID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return errors.New("AlgorithmID must be a string")
	}
	id.value = string(data[1 : len(data)-1])
	return nil
}
