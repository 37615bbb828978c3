package server

import (
	"bytes"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"captionbandit/internal/alerts"
	"captionbandit/internal/database"
	"captionbandit/internal/modules/assignments"
	"captionbandit/internal/modules/captions"
	"captionbandit/internal/modules/selection"
	"captionbandit/internal/modules/stats"
	"captionbandit/internal/scheduler"
)

// newTestServer wires the full stack over throwaway sqlite files, the same
// way cmd/server does in production
func newTestServer(t *testing.T) (*Server, *captions.Repository) {
	t.Helper()

	log := zerolog.Nop()
	dir := t.TempDir()

	statsDB, err := database.New(database.Config{Path: filepath.Join(dir, "stats.db"), Name: "stats"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = statsDB.Close() })
	require.NoError(t, statsDB.Migrate(stats.StatsSchema))
	require.NoError(t, statsDB.Migrate(captions.CaptionsSchema))

	assignmentsDB, err := database.New(database.Config{Path: filepath.Join(dir, "assignments.db"), Name: "assignments"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = assignmentsDB.Close() })
	require.NoError(t, assignmentsDB.Migrate(assignments.AssignmentsSchema))

	captionRepo := captions.NewRepository(statsDB.Conn(), log)
	statsRepo := stats.NewRepository(statsDB.Conn(), log)
	assignmentRepo := assignments.NewRepository(assignmentsDB.Conn(), log)

	sampler := stats.NewSampler(rand.New(rand.NewSource(1)))
	selector := selection.NewSelector(statsRepo, sampler, captionRepo, captionRepo,
		assignmentRepo, selection.DefaultSelectorConfig(), log)
	locker := assignments.NewLocker(assignmentRepo, captionRepo, statsRepo, log)

	sink := alerts.NewLogSink(log)
	sched := scheduler.New(log)
	sweeper := assignments.NewSweeperJob(assignmentRepo, sink, assignments.DefaultSweeperConfig(), log)

	srv := New(Config{
		Log:           log,
		Port:          0,
		StatsDB:       statsDB,
		AssignmentsDB: assignmentsDB,
		Selector:      selector,
		Locker:        locker,
		Performance:   statsRepo,
		Scheduler:     sched,
		Jobs:          map[string]scheduler.Job{sweeper.Name(): sweeper},
		AlertSink:     sink,
	})

	return srv, captionRepo
}

func doJSON(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestSelectionEndpoint(t *testing.T) {
	srv, captionRepo := newTestServer(t)

	require.NoError(t, captionRepo.Upsert(captions.Caption{
		ID: "cap-1", Text: "hello", PriceTier: captions.TierMid,
		Category: "tease", HistoricalValue: 40, IsActive: true,
	}))

	rec := doJSON(t, srv, http.MethodPost, "/api/selection", map[string]interface{}{
		"audience_id": "aud-1",
		"quotas":      map[string]int{"mid": 1},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var result selection.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "aud-1", result.AudienceID)
	require.Len(t, result.Tiers, 1)
	require.Len(t, result.Tiers[0].Selected, 1)
	assert.Equal(t, "cap-1", result.Tiers[0].Selected[0].CaptionID)
}

func TestSelectionEndpoint_Validation(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/selection", map[string]interface{}{
		"quotas": map[string]int{"mid": 1},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/selection", map[string]interface{}{
		"audience_id": "aud-1",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReserveEndpoint_InsertAndRetry(t *testing.T) {
	srv, captionRepo := newTestServer(t)

	require.NoError(t, captionRepo.Upsert(captions.Caption{
		ID: "cap-1", Text: "hello", PriceTier: captions.TierMid, IsActive: true,
	}))

	body := map[string]interface{}{
		"schedule_id": "sched-1",
		"audience_id": "aud-1",
		"assignments": []map[string]interface{}{
			{"caption_id": "cap-1", "scheduled_send_date": "2099-01-15", "scheduled_send_hour": 9},
		},
	}

	rec := doJSON(t, srv, http.MethodPost, "/api/assignments/reserve", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var result assignments.ReserveResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 1, result.Inserted)

	// Retrying the same request changes nothing
	rec = doJSON(t, srv, http.MethodPost, "/api/assignments/reserve", body)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 0, result.Inserted)
	assert.Equal(t, 1, result.AlreadyPresent)
}

func TestReserveEndpoint_GeneratesScheduleID(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/assignments/reserve", map[string]interface{}{
		"audience_id": "aud-1",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var result assignments.ReserveResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.NotEmpty(t, result.ScheduleID)
}

func TestStatsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/stats/aud-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		AudienceID string                    `json:"audience_id"`
		Records    []stats.PerformanceRecord `json:"records"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "aud-1", payload.AudienceID)
	assert.Empty(t, payload.Records)
}

func TestRunJobEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/jobs/lock_sweeper/run", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/jobs/nope/run", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAlertsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/alerts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"alerts":[]}`, rec.Body.String())
}
