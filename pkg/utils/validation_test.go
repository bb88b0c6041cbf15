package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "feedrank/pkg/errors"
)

type sample struct {
	UserID string `validate:"required"`
	Rating int    `validate:"min=1,max=5"`
	Slug   string `validate:"max=5"`
}

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name    string
		input   sample
		wantErr bool
		field   string
	}{
		{name: "valid", input: sample{UserID: "u", Rating: 3}, wantErr: false},
		{name: "missing user", input: sample{Rating: 3}, wantErr: true, field: "user_id"},
		{name: "rating too high", input: sample{UserID: "u", Rating: 6}, wantErr: true, field: "rating"},
		{name: "slug too long", input: sample{UserID: "u", Rating: 1, Slug: "toolong"}, wantErr: true, field: "slug"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(tt.input)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, pkgerrors.IsValidation(err))
			assert.Contains(t, pkgerrors.GetAppError(err).Details, tt.field)
		})
	}
}

func TestToSnake(t *testing.T) {
	assert.Equal(t, "weight_config", toSnake("WeightConfig"))
	assert.Equal(t, "user_id", toSnake("UserID"))
	assert.Equal(t, "slug", toSnake("Slug"))
}

func TestFormatTimestamp(t *testing.T) {
	assert.Equal(t, "", FormatTimestamp(time.Time{}))
	assert.Equal(t, "2024-06-01T12:00:00Z", FormatTimestamp(time.Date(2024, 6, 1, 14, 0, 0, 0, time.FixedZone("CEST", 7200))))
	assert.Equal(t, 1500*time.Millisecond, MillisToDuration(1500))
	assert.Equal(t, time.Duration(0), MillisToDuration(-1))
}
