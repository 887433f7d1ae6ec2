package auth_test

import (
	"testing"
	"time"

	auth "github.com/goliatone/go-blog-auth"
	"github.com/stretchr/testify/assert"
)

func TestIsWithinThresholdPeriod(t *testing.T) {
	tests := []struct {
		name          string
		inputTime     time.Time
		thresholdExpr string
		expected      bool
		expectErr     bool
	}{
		{
			name:          "Within 1 hour threshold",
			inputTime:     time.Now().Add(-30 * time.Minute),
			thresholdExpr: "1h",
			expected:      true,
		},
		{
			name:          "Outside 1 hour threshold",
			inputTime:     time.Now().Add(-90 * time.Minute),
			thresholdExpr: "1h",
			expected:      false,
		},
		{
			name:          "Complex threshold (2h30m)",
			inputTime:     time.Now().Add(-2 * time.Hour),
			thresholdExpr: "2h30m",
			expected:      true,
		},
		{
			name:          "Invalid threshold expression",
			inputTime:     time.Now(),
			thresholdExpr: "invalid",
			expected:      false,
			expectErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := auth.IsWithinThresholdPeriod(tt.inputTime, tt.thresholdExpr)

			if tt.expectErr {
				assert.Error(t, err)
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestIsOutsideThresholdPeriod(t *testing.T) {
	t.Run("mirrors IsWithinThresholdPeriod", func(t *testing.T) {
		within, err := auth.IsOutsideThresholdPeriod(time.Now().Add(-30*time.Minute), "1h")
		assert.NoError(t, err)
		assert.False(t, within)

		outside, err := auth.IsOutsideThresholdPeriod(time.Now().Add(-90*time.Minute), "1h")
		assert.NoError(t, err)
		assert.True(t, outside)
	})

	t.Run("propagates parse errors", func(t *testing.T) {
		_, err := auth.IsOutsideThresholdPeriod(time.Now(), "not-a-duration")
		assert.Error(t, err)
	})
}
