package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/abhisek/masterypath/internal/diagnosis"
	"github.com/abhisek/masterypath/internal/graph"
	"github.com/abhisek/masterypath/internal/lessons"
	"github.com/abhisek/masterypath/internal/mastery"
	"github.com/abhisek/masterypath/internal/plan"
	"github.com/abhisek/masterypath/internal/pp100"
	"github.com/abhisek/masterypath/internal/spacedrep"
	"github.com/abhisek/masterypath/internal/tutor"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

type DataEnvelope struct {
	Data any `json:"data"`
}

func respondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, ErrorEnvelope{Error: APIError{Message: msg, Code: code}})
}

func respondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, DataEnvelope{Data: payload})
}

// respondServiceError maps a tutor error onto a status and code.
func respondServiceError(c *gin.Context, err error) {
	status, code := classify(err)
	respondError(c, status, code, err)
}

func classify(err error) (int, string) {
	var (
		content *pp100.ContentInsufficiencyError
		cycle   *diagnosis.GraphCycleError
		invalid *mastery.InvalidTransitionError
	)
	switch {
	case errors.As(err, &content):
		return http.StatusConflict, "content_insufficient"
	case errors.As(err, &cycle):
		return http.StatusInternalServerError, "graph_cycle"
	case errors.As(err, &invalid):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, tutor.ErrStudentRequired):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, graph.ErrAtomNotFound):
		return http.StatusNotFound, "atom_not_found"
	case errors.Is(err, lessons.ErrNoLesson):
		return http.StatusNotFound, "no_lesson"
	case errors.Is(err, spacedrep.ErrNothingDue):
		return http.StatusNotFound, "nothing_due"
	case errors.Is(err, tutor.ErrNoActiveReview):
		return http.StatusNotFound, "no_active_review"
	case errors.Is(err, plan.ErrWrongPhase):
		return http.StatusConflict, "wrong_phase"
	case errors.Is(err, pp100.ErrNotPending), errors.Is(err, spacedrep.ErrNotInSession):
		return http.StatusConflict, "not_pending"
	case errors.Is(err, pp100.ErrSessionOver):
		return http.StatusConflict, "session_over"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
