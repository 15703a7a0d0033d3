package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cloudgroundcontrol/soundboard-bot/pkg/metrics"
	"github.com/cloudgroundcontrol/soundboard-bot/pkg/voice"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

type mockSessions struct {
	statuses []voice.Status
	stopped  []string
}

func (m *mockSessions) Statuses() []voice.Status {
	return m.statuses
}

func (m *mockSessions) StopRecording(_ context.Context, guildID string) (string, error) {
	if guildID != "known" {
		return "", voice.ErrUnknownGuild
	}
	m.stopped = append(m.stopped, guildID)
	return voice.ReplyRecordingStopped, nil
}

func serve(e *echo.Echo, method string, target string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	e := NewServer(ServerConfig{Sessions: &mockSessions{}})

	rec := serve(e, http.MethodGet, "/health-check", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(e, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Welcome to CGC", rec.Body.String())

	rec = serve(e, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListSessions(t *testing.T) {
	sessions := &mockSessions{statuses: []voice.Status{
		{Guild: "g1", State: voice.StateRecording, Channel: "c1", Captures: []string{"alice"}},
	}}
	e := NewServer(ServerConfig{Sessions: sessions})

	rec := serve(e, http.MethodGet, "/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []voice.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, sessions.statuses, got)
}

func TestStopRecording(t *testing.T) {
	sessions := &mockSessions{}
	e := NewServer(ServerConfig{Sessions: sessions})

	rec := serve(e, http.MethodPost, "/sessions/stop-recording", `{"guild":"known"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"known"}, sessions.stopped)

	var resp StopRecordingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, voice.ReplyRecordingStopped, resp.Reply)
}

func TestStopRecordingValidation(t *testing.T) {
	e := NewServer(ServerConfig{Sessions: &mockSessions{}})

	rec := serve(e, http.MethodPost, "/sessions/stop-recording", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(e, http.MethodPost, "/sessions/stop-recording", `{"guild":"other"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.NewMetrics("test")
	m.RecordCommand("join")
	e := NewServer(ServerConfig{Sessions: &mockSessions{}, Metrics: m.Handler()})

	rec := serve(e, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `test_commands_total{command="join"} 1`)
}
