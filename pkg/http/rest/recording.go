package rest

import (
	"context"
	"errors"
	"net/http"

	"github.com/cloudgroundcontrol/soundboard-bot/pkg/voice"
	"github.com/labstack/echo/v4"
)

type Sessions interface {
	Statuses() []voice.Status
	StopRecording(ctx context.Context, guildID string) (string, error)
}

type sessionController struct {
	Sessions
}

type StopRecordingRequest struct {
	Guild string `json:"guild"`
}

type StopRecordingResponse struct {
	Reply string `json:"reply"`
}

func NewSessionController(sessions Sessions) sessionController {
	return sessionController{sessions}
}

var ErrEmptyFields = errors.New("one or more fields is empty")

func (sc *sessionController) ListSessions(c echo.Context) error {
	return c.JSON(http.StatusOK, sc.Sessions.Statuses())
}

func (sc *sessionController) StopRecording(c echo.Context) error {
	// Bind request data
	data := new(StopRecordingRequest)
	if err := c.Bind(data); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err)
	}

	// Sanitise request
	if data.Guild == "" {
		return echo.NewHTTPError(http.StatusBadRequest, ErrEmptyFields)
	}

	// Call service
	reply, err := sc.Sessions.StopRecording(c.Request().Context(), data.Guild)
	if errors.Is(err, voice.ErrUnknownGuild) {
		return echo.NewHTTPError(http.StatusNotFound, err)
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err)
	}

	// Return the reply a user would have seen
	return c.JSON(http.StatusOK, StopRecordingResponse{Reply: reply})
}
