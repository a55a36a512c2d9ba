package timeline

import "fmt"

// FormatClock renders seconds as M:SS, as shown on a player's progress readout.
// Minutes are not rolled into hours.
func FormatClock(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

// FormatDuration renders seconds as "1h 37m" or "30 mins"
func FormatDuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	hours := seconds / 3600
	mins := (seconds % 3600) / 60
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%d mins", mins)
}
