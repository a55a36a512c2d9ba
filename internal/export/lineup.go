// Package export renders the schedule lineup as an HLS media playlist so that
// standard players and tooling can inspect what is on air and what follows.
package export

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/Eyevinn/hls-m3u8/m3u8"
	"github.com/stwalsh4118/simulcast/internal/logger"
	"github.com/stwalsh4118/simulcast/internal/timeline"
)

// Lineup encodes the current program followed by upcoming as a live media playlist.
// Each program is one entry whose URI is its media reference. The media sequence
// counts programs aired since the epoch, so it only ever grows.
func Lineup(s *timeline.Schedule, pos timeline.Position, upcoming []timeline.UpcomingProgram) ([]byte, error) {
	if s == nil {
		return nil, errors.New("schedule is required")
	}

	count := uint(len(upcoming) + 1)
	playlist, err := m3u8.NewMediaPlaylist(count, count)
	if err != nil {
		return nil, fmt.Errorf("failed to create media playlist: %w", err)
	}

	seq := mediaSequence(s, pos)
	playlist.SeqNo = seq

	maxDuration := float64(pos.Program.Duration)
	current := &m3u8.MediaSegment{
		SeqId:           seq,
		URI:             pos.Program.MediaRef,
		Duration:        float64(pos.Program.Duration),
		Title:           pos.Program.Title,
		ProgramDateTime: pos.StartedAt,
	}
	if err := playlist.AppendSegment(current); err != nil {
		return nil, fmt.Errorf("failed to append %s: %w", pos.Program.MediaRef, err)
	}

	for i, u := range upcoming {
		d := float64(u.Program.Duration)
		maxDuration = math.Max(maxDuration, d)
		seg := &m3u8.MediaSegment{
			SeqId:           seq + uint64(i) + 1,
			URI:             u.Program.MediaRef,
			Duration:        d,
			Title:           u.Program.Title,
			ProgramDateTime: u.StartsAt,
			// The lineup starts over at index 0
			Discontinuity: u.Index == 0,
		}
		if err := playlist.AppendSegment(seg); err != nil {
			return nil, fmt.Errorf("failed to append %s: %w", u.Program.MediaRef, err)
		}
	}

	playlist.TargetDuration = uint(math.Ceil(maxDuration))

	buf := playlist.Encode()
	if buf == nil {
		return nil, errors.New("failed to encode playlist")
	}
	return buf.Bytes(), nil
}

// mediaSequence numbers the current program across cycles
func mediaSequence(s *timeline.Schedule, pos timeline.Position) uint64 {
	n := pos.Cycle*int64(s.Len()) + int64(pos.ProgramIndex)
	if n < 0 {
		return 0
	}
	return uint64(n)
}

// WriteFile writes content to path atomically
func WriteFile(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tempFile, err := os.CreateTemp(dir, ".lineup-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	defer func() {
		if tempFile != nil {
			_ = tempFile.Close()
			_ = os.Remove(tempPath)
		}
	}()

	if _, err := tempFile.Write(content); err != nil {
		return fmt.Errorf("failed to write content: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to rename file: %w", err)
	}
	tempFile = nil

	logger.Log.Debug().
		Str("path", path).
		Int("bytes", len(content)).
		Msg("Lineup playlist written")

	return nil
}
