package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stwalsh4118/simulcast/internal/models"
	"github.com/stwalsh4118/simulcast/internal/timeline"
)

var testEpoch = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

// createTestTimeline builds the A:180, B:210, C:195 schedule with a clock fixed at epoch+at
func createTestTimeline(t *testing.T, at time.Duration) *timeline.TimelineService {
	t.Helper()
	s, err := timeline.NewSchedule(testEpoch, []*models.Program{
		{ID: "A", MediaRef: "a.mp4", Title: "Program A", Category: "Tech", Duration: 180},
		{ID: "B", MediaRef: "b.mp4", Title: "Program B", Category: "Music", Duration: 210},
		{ID: "C", MediaRef: "c.mp4", Title: "Program C", Category: "News", Duration: 195},
	})
	require.NoError(t, err)

	now := testEpoch.Add(at)
	return timeline.NewTimelineService(s, func() time.Time { return now })
}

// setupScheduleTestRouter creates a test router with schedule routes
func setupScheduleTestRouter(t *testing.T, at time.Duration) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	apiGroup := router.Group("/api")
	SetupScheduleRoutes(apiGroup, createTestTimeline(t, at), "Simulcast")
	return router
}

func doGet(router *gin.Engine, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func assertNoStore(t *testing.T, w *httptest.ResponseRecorder) {
	t.Helper()
	assert.Contains(t, w.Header().Get("Cache-Control"), "no-store")
	assert.Equal(t, "no-cache", w.Header().Get("Pragma"))
	assert.Equal(t, "0", w.Header().Get("Expires"))
	assert.Equal(t, "no-store", w.Header().Get("Surrogate-Control"))
}

func TestGetCurrent(t *testing.T) {
	router := setupScheduleTestRouter(t, 185*time.Second)

	w := doGet(router, "/api/schedule/current")
	require.Equal(t, http.StatusOK, w.Code)
	assertNoStore(t, w)

	var resp CurrentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Equal(t, "B", resp.Program.ID)
	assert.Equal(t, "b.mp4", resp.Program.MediaRef)
	assert.Equal(t, "Music", resp.Program.Category)
	assert.Equal(t, 1, resp.ProgramIndex)
	assert.Equal(t, int64(5), resp.OffsetSeconds)
	assert.Equal(t, int64(205), resp.TimeRemainingSeconds)
	assert.Equal(t, "C", resp.NextProgram.ID)
	assert.Equal(t, 2, resp.NextIndex)
	assert.True(t, resp.NextStartTime.Equal(testEpoch.Add(390*time.Second)))
	assert.Equal(t, int64(185), resp.CyclePosition)
	assert.Equal(t, int64(585), resp.TotalDuration)
	assert.Equal(t, 3, resp.TotalPrograms)
	assert.False(t, resp.IsFirstInCycle)
	assert.False(t, resp.IsLastInCycle)
	assert.Equal(t, testEpoch.UnixMilli(), resp.EpochStart)
	assert.Equal(t, testEpoch.Add(185*time.Second).UnixMilli(), resp.ServerTime)
}

func TestGetCurrent_FullCycle(t *testing.T) {
	router := setupScheduleTestRouter(t, 585*time.Second)

	var resp CurrentResponse
	w := doGet(router, "/api/schedule/current")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Equal(t, "A", resp.Program.ID)
	assert.Equal(t, int64(0), resp.OffsetSeconds)
	assert.Equal(t, int64(1), resp.Cycle)
	assert.True(t, resp.IsFirstInCycle)
}

func TestGetUpcoming(t *testing.T) {
	router := setupScheduleTestRouter(t, 185*time.Second)

	t.Run("explicit count", func(t *testing.T) {
		w := doGet(router, "/api/schedule/upcoming?count=2")
		require.Equal(t, http.StatusOK, w.Code)
		assertNoStore(t, w)

		var resp UpcomingResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

		assert.Equal(t, "B", resp.Current.Program.ID)
		require.Len(t, resp.Upcoming, 2)
		assert.Equal(t, 2, resp.Count)
		assert.False(t, resp.WillWrapToFirst)

		assert.Equal(t, "C", resp.Upcoming[0].Program.ID)
		assert.Equal(t, 2, resp.Upcoming[0].Index)
		assert.Equal(t, int64(205), resp.Upcoming[0].StartsInSeconds)
		assert.True(t, resp.Upcoming[0].StartsAt.Equal(testEpoch.Add(390*time.Second)))
		assert.False(t, resp.Upcoming[0].IsWrapAround)

		assert.Equal(t, "A", resp.Upcoming[1].Program.ID)
		assert.Equal(t, int64(400), resp.Upcoming[1].StartsInSeconds)
		assert.True(t, resp.Upcoming[1].IsWrapAround)
		assert.True(t, resp.Upcoming[1].IsFirstInNextCycle)
		assert.False(t, resp.Upcoming[0].IsFirstInNextCycle)
	})

	t.Run("default count", func(t *testing.T) {
		var resp UpcomingResponse
		w := doGet(router, "/api/schedule/upcoming")
		require.Equal(t, http.StatusOK, w.Code)
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Len(t, resp.Upcoming, defaultUpcomingCount)
	})

	t.Run("zero count", func(t *testing.T) {
		w := doGet(router, "/api/schedule/upcoming?count=0")
		require.Equal(t, http.StatusOK, w.Code)

		var raw map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
		assert.Equal(t, []interface{}{}, raw["upcoming"], "empty list, not null")
	})

	for _, bad := range []string{"-1", "101", "abc", "2.5"} {
		t.Run("invalid count "+bad, func(t *testing.T) {
			w := doGet(router, "/api/schedule/upcoming?count="+bad)
			require.Equal(t, http.StatusBadRequest, w.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "invalid_count", resp.Error)
		})
	}
}

func TestGetUpcoming_LastProgramWraps(t *testing.T) {
	router := setupScheduleTestRouter(t, 400*time.Second)

	var resp UpcomingResponse
	w := doGet(router, "/api/schedule/upcoming?count=1")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.True(t, resp.WillWrapToFirst)
	assert.True(t, resp.Current.IsLastInCycle)
	require.Len(t, resp.Upcoming, 1)
	assert.Equal(t, "A", resp.Upcoming[0].Program.ID)
	assert.True(t, resp.Upcoming[0].IsFirstInNextCycle)
	assert.Equal(t, int64(185), resp.Upcoming[0].StartsInSeconds)
}

func TestGetSchedule(t *testing.T) {
	router := setupScheduleTestRouter(t, 0)

	w := doGet(router, "/api/schedule")
	require.Equal(t, http.StatusOK, w.Code)
	assertNoStore(t, w)

	var resp ScheduleResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Simulcast", resp.ChannelName)
	assert.Equal(t, testEpoch.UnixMilli(), resp.EpochStart)
	assert.Equal(t, int64(585), resp.TotalDuration)
	assert.Equal(t, 3, resp.TotalPrograms)
	require.Len(t, resp.Programs, 3)
	assert.Equal(t, "A", resp.Programs[0].ID)
}

func TestGetUpcomingPlaylist(t *testing.T) {
	router := setupScheduleTestRouter(t, 185*time.Second)

	w := doGet(router, "/api/schedule/upcoming.m3u8?count=2")
	require.Equal(t, http.StatusOK, w.Code)
	assertNoStore(t, w)
	assert.Equal(t, m3u8ContentType, w.Header().Get("Content-Type"))

	body := w.Body.String()
	assert.True(t, strings.HasPrefix(body, "#EXTM3U"))
	assert.Contains(t, body, "b.mp4")
	assert.Contains(t, body, "c.mp4")
	assert.Contains(t, body, "a.mp4")

	w = doGet(router, "/api/schedule/upcoming.m3u8?count=500")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetCurrent_Deterministic(t *testing.T) {
	router := setupScheduleTestRouter(t, 12345*time.Second)

	first := doGet(router, "/api/schedule/current").Body.String()
	second := doGet(router, "/api/schedule/current").Body.String()
	assert.Equal(t, first, second)
}
