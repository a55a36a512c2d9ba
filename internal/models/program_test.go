package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewProgram(t *testing.T) {
	p := NewProgram("BPf0rhGKM-Q", "Morning Lecture", 5820)

	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "BPf0rhGKM-Q", p.MediaRef)
	assert.Equal(t, int64(5820), p.Duration)
	assert.False(t, p.CreatedAt.IsZero())
}

func TestProgram_DurationString(t *testing.T) {
	tests := []struct {
		duration int64
		want     string
	}{
		{37, "00:00:37"},
		{1800, "00:30:00"},
		{5820, "01:37:00"},
		{90061, "25:01:01"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			p := &Program{Duration: tt.duration}
			assert.Equal(t, tt.want, p.DurationString())
		})
	}
}
