package handler

import (
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/johnquangdev/meeting-memory/errors"
	dto "github.com/johnquangdev/meeting-memory/internal/adapter/dto/memory"
	"github.com/johnquangdev/meeting-memory/internal/domain/entities"
	memoryuse "github.com/johnquangdev/meeting-memory/internal/usecase/memory"
)

// Memory handles the meeting memory API endpoints
type Memory struct {
	svc    memoryuse.Service
	logger *zap.Logger
}

// NewMemory creates a new memory handler
func NewMemory(svc memoryuse.Service, logger *zap.Logger) *Memory {
	return &Memory{svc: svc, logger: logger}
}

func meetingIDParam(c echo.Context) (uuid.UUID, error) {
	meetingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, errors.ErrInvalidArgument("invalid meeting id")
	}
	return meetingID, nil
}

// AppendUtterance ingests one live transcript utterance
func (h *Memory) AppendUtterance(c echo.Context) error {
	meetingID, err := meetingIDParam(c)
	if err != nil {
		return HandleError(h.logger, c, err)
	}

	var req dto.AppendUtteranceRequest
	if err := c.Bind(&req); err != nil {
		return HandleError(h.logger, c, errors.ErrInvalidArgument("invalid request payload"))
	}
	if err := c.Validate(&req); err != nil {
		return HandleError(h.logger, c, errors.ErrInvalidArgument(err.Error()))
	}

	chunks, err := h.svc.OnTranscriptAppend(c.Request().Context(), meetingID, entities.Speaker(req.Speaker), req.Text, req.TimestampMS)
	if err != nil {
		return HandleError(h.logger, c, h.mapDomainError(err, req.Speaker))
	}

	resp := dto.AppendUtteranceResponse{FinalizedChunks: make([]dto.ChunkResponse, 0, len(chunks))}
	for _, chunk := range chunks {
		resp.FinalizedChunks = append(resp.FinalizedChunks, dto.NewChunkResponse(chunk))
	}
	return HandleSuccess(h.logger, c, resp)
}

// EndMeeting flushes the buffered remainder and finalizes the summary
func (h *Memory) EndMeeting(c echo.Context) error {
	meetingID, err := meetingIDParam(c)
	if err != nil {
		return HandleError(h.logger, c, err)
	}

	if err := h.svc.OnMeetingEnd(c.Request().Context(), meetingID); err != nil {
		return HandleError(h.logger, c, h.mapDomainError(err, ""))
	}
	return HandleSuccess(h.logger, c, map[string]interface{}{"status": "ended"})
}

// Query answers a question about the meeting, streaming tokens as
// server-sent events. The final event carries whether the raw
// context-window fallback was used.
func (h *Memory) Query(c echo.Context) error {
	meetingID, err := meetingIDParam(c)
	if err != nil {
		return HandleError(h.logger, c, err)
	}

	var req dto.QueryRequest
	if err := c.Bind(&req); err != nil {
		return HandleError(h.logger, c, errors.ErrInvalidArgument("invalid request payload"))
	}
	if err := c.Validate(&req); err != nil {
		return HandleError(h.logger, c, errors.ErrInvalidArgument(err.Error()))
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	emit := func(token string) {
		payload, err := json.Marshal(map[string]string{"token": token})
		if err != nil {
			return
		}
		fmt.Fprintf(resp, "data: %s\n\n", payload)
		resp.Flush()
	}

	usedFallback, err := h.svc.QueryMeeting(c.Request().Context(), meetingID, req.Question, emit)
	if err != nil {
		if stdErrors.Is(err, entities.ErrInvalidRequest) {
			// Nothing streamed yet; a normal error response is still possible.
			return HandleError(h.logger, c, errors.ErrInvalidArgument("question must not be empty"))
		}
		// The stream is already open: report the failure in-band.
		if h.logger != nil {
			h.logger.Error("query stream failed",
				zap.String("meeting_id", meetingID.String()),
				zap.Error(err),
			)
		}
		fmt.Fprintf(resp, "data: {\"error\":\"couldn't get a response\"}\n\n")
		resp.Flush()
		return nil
	}

	fmt.Fprintf(resp, "data: {\"done\":true,\"used_fallback\":%t}\n\n", usedFallback)
	resp.Flush()
	return nil
}

// GetSummary returns the meeting's current rolling summary
func (h *Memory) GetSummary(c echo.Context) error {
	meetingID, err := meetingIDParam(c)
	if err != nil {
		return HandleError(h.logger, c, err)
	}

	summary, err := h.svc.GetSummary(c.Request().Context(), meetingID)
	if err != nil {
		return HandleError(h.logger, c, err)
	}
	if summary == nil {
		return HandleError(h.logger, c, errors.ErrSummaryNotReady())
	}
	return HandleSuccess(h.logger, c, dto.NewSummaryResponse(summary))
}

// ListJobs returns the meeting's embedding jobs for diagnostics
func (h *Memory) ListJobs(c echo.Context) error {
	meetingID, err := meetingIDParam(c)
	if err != nil {
		return HandleError(h.logger, c, err)
	}

	jobs, err := h.svc.ListJobs(c.Request().Context(), meetingID)
	if err != nil {
		return HandleError(h.logger, c, err)
	}

	resp := make([]dto.JobResponse, 0, len(jobs))
	for _, job := range jobs {
		resp = append(resp, dto.NewJobResponse(job))
	}
	return HandleSuccess(h.logger, c, map[string]interface{}{"jobs": resp})
}

// mapDomainError converts domain sentinel errors to transport errors
func (h *Memory) mapDomainError(err error, speaker string) error {
	switch {
	case stdErrors.Is(err, entities.ErrInvalidSpeaker):
		return errors.ErrInvalidSpeaker(speaker).WithDetail("allowed", "self, other")
	case stdErrors.Is(err, entities.ErrEmptyUtterance):
		return errors.ErrEmptyUtterance()
	case stdErrors.Is(err, entities.ErrMeetingNotFound):
		return errors.ErrMeetingNotFound()
	default:
		return errors.ErrInternal(err)
	}
}
