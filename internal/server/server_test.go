package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/studygen-go/internal/events"
	"github.com/raphaelgruber/studygen-go/internal/metrics"
	"github.com/raphaelgruber/studygen-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *events.Bus, *httptest.Server) {
	t.Helper()
	bus := events.NewBus()
	collector := metrics.NewCollector()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s := New(":0", nil, bus, collector, logger)
	ts := httptest.NewServer(s.http.Handler)
	t.Cleanup(ts.Close)
	return s, bus, ts
}

func TestStatsEndpoint(t *testing.T) {
	_, _, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/v1/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body, "stats")
	assert.Contains(t, body, "events_dropped")
}

func TestJobEndpointsRequireIdentity(t *testing.T) {
	_, _, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/v1/jobs/some-id")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/v1/jobs")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/v1/events")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEventStreamFiltersByUser(t *testing.T) {
	_, bus, ts := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/events"
	header := http.Header{"X-User-ID": []string{"user-1"}}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	// Give the server's subscribe loop a moment to register.
	time.Sleep(50 * time.Millisecond)

	bus.Publish(events.Event{
		Topic:        events.TopicArtifactCompleted,
		JobID:        "job-other",
		UserID:       "user-2",
		ArtifactType: models.ArtifactQuiz,
		Timestamp:    time.Now().UTC(),
	})
	bus.Publish(events.Event{
		Topic:        events.TopicArtifactFailed,
		JobID:        "job-mine",
		UserID:       "user-1",
		ArtifactType: models.ArtifactFlashcards,
		Timestamp:    time.Now().UTC(),
		Error:        &models.JobError{Kind: models.KindTimeout},
	})

	// The first delivered event must be ours: the other user's event is
	// filtered server-side.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var ev events.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "job-mine", ev.JobID)
	assert.Equal(t, "user-1", ev.UserID)
	require.NotNil(t, ev.Error)
	assert.Equal(t, models.KindTimeout, ev.Error.Kind)
}

func TestEventStreamAcceptsQueryParamIdentity(t *testing.T) {
	_, bus, ts := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/events?user_id=user-9"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	time.Sleep(50 * time.Millisecond)
	bus.Publish(events.Event{
		Topic:     events.TopicArtifactCompleted,
		JobID:     "job-9",
		UserID:    "user-9",
		Timestamp: time.Now().UTC(),
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var ev events.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "job-9", ev.JobID)
}
