package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatAge(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{0, "0s"},
		{40 * time.Second, "40s"},
		{12 * time.Minute, "12m"},
		{5*time.Hour + 59*time.Minute, "5h"},
		{75 * time.Hour, "3d"},
		{-time.Minute, "0s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatAge(now.Add(-tt.ago), now), "ago=%v", tt.ago)
	}
	assert.Equal(t, "-", FormatAge(time.Time{}, now))
}

func TestFormatTime(t *testing.T) {
	assert.Equal(t, "-", FormatTime(time.Time{}))

	ts := time.Date(2024, 5, 10, 12, 0, 0, 0, time.Local)
	assert.Equal(t, "2024-05-10 12:00:00", FormatTime(ts))
}
