// Package api provides HTTP handlers for the REST API endpoints.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stwalsh4118/simulcast/internal/export"
	"github.com/stwalsh4118/simulcast/internal/logger"
	"github.com/stwalsh4118/simulcast/internal/middleware"
	"github.com/stwalsh4118/simulcast/internal/models"
	"github.com/stwalsh4118/simulcast/internal/timeline"
)

const (
	defaultUpcomingCount = 10
	maxUpcomingCount     = 100
	m3u8ContentType      = "application/vnd.apple.mpegurl"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// CurrentResponse is the position of the channel at the instant of the request
type CurrentResponse struct {
	Program              models.Program `json:"program"`
	ProgramIndex         int            `json:"program_index"`
	OffsetSeconds        int64          `json:"offset_seconds"`
	Offset               float64        `json:"offset"`
	TimeRemainingSeconds int64          `json:"time_remaining_seconds"`
	StartedAt            time.Time      `json:"started_at"`
	NextProgram          models.Program `json:"next_program"`
	NextIndex            int            `json:"next_index"`
	NextStartTime        time.Time      `json:"next_start_time"`
	CyclePosition        int64          `json:"cycle_position"`
	Cycle                int64          `json:"cycle"`
	TotalDuration        int64          `json:"total_duration"`
	TotalPrograms        int            `json:"total_programs"`
	IsFirstInCycle       bool           `json:"is_first_in_cycle"`
	IsLastInCycle        bool           `json:"is_last_in_cycle"`
	ServerTime           int64          `json:"server_time"` // unix milliseconds
	EpochStart           int64          `json:"epoch_start"` // unix milliseconds
}

// UpcomingProgramResponse is one lookahead entry
type UpcomingProgramResponse struct {
	Program            models.Program `json:"program"`
	Index              int            `json:"index"`
	StartsInSeconds    int64          `json:"starts_in_seconds"`
	StartsAt           time.Time      `json:"starts_at"`
	IsFirstInNextCycle bool           `json:"is_first_in_next_cycle"`
	IsWrapAround       bool           `json:"is_wrap_around"`
}

// UpcomingResponse is the current position followed by the next programs
type UpcomingResponse struct {
	Current         CurrentResponse           `json:"current"`
	Upcoming        []UpcomingProgramResponse `json:"upcoming"`
	Count           int                       `json:"count"`
	WillWrapToFirst bool                      `json:"will_wrap_to_first"`
}

// ScheduleResponse is the whole lineup
type ScheduleResponse struct {
	ChannelName   string           `json:"channel_name"`
	EpochStart    int64            `json:"epoch_start"`
	Epoch         time.Time        `json:"epoch"`
	TotalDuration int64            `json:"total_duration"`
	TotalPrograms int              `json:"total_programs"`
	Programs      []models.Program `json:"programs"`
}

// ScheduleHandler serves read-only schedule queries. Every response is computed
// from the request instant and the fixed schedule; nothing is stored.
type ScheduleHandler struct {
	timeline    *timeline.TimelineService
	channelName string
}

// NewScheduleHandler creates a new schedule handler instance
func NewScheduleHandler(timelineService *timeline.TimelineService, channelName string) *ScheduleHandler {
	return &ScheduleHandler{
		timeline:    timelineService,
		channelName: channelName,
	}
}

// toCurrentResponse converts a position to API response format
func toCurrentResponse(s *timeline.Schedule, pos timeline.Position) CurrentResponse {
	return CurrentResponse{
		Program:              pos.Program,
		ProgramIndex:         pos.ProgramIndex,
		OffsetSeconds:        pos.OffsetSeconds,
		Offset:               pos.OffsetFloat(),
		TimeRemainingSeconds: pos.TimeRemainingSeconds,
		StartedAt:            pos.StartedAt,
		NextProgram:          pos.NextProgram,
		NextIndex:            pos.NextIndex,
		NextStartTime:        pos.EndsAt,
		CyclePosition:        pos.CyclePosition,
		Cycle:                pos.Cycle,
		TotalDuration:        pos.TotalDuration,
		TotalPrograms:        s.Len(),
		IsFirstInCycle:       pos.IsFirstInCycle,
		IsLastInCycle:        pos.IsLastInCycle,
		ServerTime:           pos.CalculatedAt.UnixMilli(),
		EpochStart:           s.Epoch().UnixMilli(),
	}
}

// toUpcomingResponse converts lookahead entries to API response format
func toUpcomingResponse(upcoming []timeline.UpcomingProgram) []UpcomingProgramResponse {
	responses := make([]UpcomingProgramResponse, len(upcoming))
	for i, u := range upcoming {
		responses[i] = UpcomingProgramResponse{
			Program:            u.Program,
			Index:              u.Index,
			StartsInSeconds:    u.StartsInSeconds,
			StartsAt:           u.StartsAt,
			IsFirstInNextCycle: u.IsFirstInNextCycle,
			IsWrapAround:       u.IsWrapAround,
		}
	}
	return responses
}

// parseCount reads ?count=, defaulting to 10 and accepting 0..100
func parseCount(c *gin.Context) (int, bool) {
	raw := c.Query("count")
	if raw == "" {
		return defaultUpcomingCount, true
	}

	count, err := strconv.Atoi(raw)
	if err != nil || count < 0 || count > maxUpcomingCount {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_count",
			Message: "count must be an integer between 0 and 100",
		})
		return 0, false
	}
	return count, true
}

// GetSchedule handles GET /api/schedule
func (h *ScheduleHandler) GetSchedule(c *gin.Context) {
	s := h.timeline.Schedule()

	c.JSON(http.StatusOK, ScheduleResponse{
		ChannelName:   h.channelName,
		EpochStart:    s.Epoch().UnixMilli(),
		Epoch:         s.Epoch(),
		TotalDuration: s.TotalDuration(),
		TotalPrograms: s.Len(),
		Programs:      s.Programs(),
	})
}

// GetCurrent handles GET /api/schedule/current
func (h *ScheduleHandler) GetCurrent(c *gin.Context) {
	pos := h.timeline.Current()
	c.JSON(http.StatusOK, toCurrentResponse(h.timeline.Schedule(), pos))
}

// GetUpcoming handles GET /api/schedule/upcoming
func (h *ScheduleHandler) GetUpcoming(c *gin.Context) {
	count, ok := parseCount(c)
	if !ok {
		return
	}

	pos, upcoming := h.timeline.Upcoming(count)

	c.JSON(http.StatusOK, UpcomingResponse{
		Current:         toCurrentResponse(h.timeline.Schedule(), pos),
		Upcoming:        toUpcomingResponse(upcoming),
		Count:           len(upcoming),
		WillWrapToFirst: pos.IsLastInCycle,
	})
}

// GetUpcomingPlaylist handles GET /api/schedule/upcoming.m3u8
func (h *ScheduleHandler) GetUpcomingPlaylist(c *gin.Context) {
	count, ok := parseCount(c)
	if !ok {
		return
	}

	pos, upcoming := h.timeline.Upcoming(count)

	content, err := export.Lineup(h.timeline.Schedule(), pos, upcoming)
	if err != nil {
		logger.Log.Error().
			Err(err).
			Int("count", count).
			Msg("Failed to export lineup playlist")

		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "export_failed",
			Message: "Failed to build lineup playlist",
		})
		return
	}

	c.Data(http.StatusOK, m3u8ContentType, content)
}

// SetupScheduleRoutes registers schedule routes
func SetupScheduleRoutes(apiGroup *gin.RouterGroup, timelineService *timeline.TimelineService, channelName string) {
	handler := NewScheduleHandler(timelineService, channelName)

	schedule := apiGroup.Group("/schedule", middleware.NoStore())
	schedule.GET("", handler.GetSchedule)
	schedule.GET("/current", handler.GetCurrent)
	schedule.GET("/upcoming", handler.GetUpcoming)
	schedule.GET("/upcoming.m3u8", handler.GetUpcomingPlaylist)
}
