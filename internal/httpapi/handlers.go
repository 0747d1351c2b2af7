package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/abhisek/masterypath/internal/graph"
	"github.com/abhisek/masterypath/internal/tutor"
)

var errBadBody = errors.New("invalid request body")

type StudentHandler struct {
	svc *tutor.Service
}

func NewStudentHandler(svc *tutor.Service) *StudentHandler {
	return &StudentHandler{svc: svc}
}

type answerRequest struct {
	QuestionID string `json:"question_id" binding:"required"`
	Correct    *bool  `json:"correct" binding:"required"`
}

type seedRequest struct {
	AtomIDs []string `json:"atom_ids" binding:"required,min=1"`
}

func bindAnswer(c *gin.Context) (answerRequest, bool) {
	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", errors.Join(errBadBody, err))
		return req, false
	}
	return req, true
}

// GET /v1/atoms
func (h *StudentHandler) ListAtoms(c *gin.Context) {
	g := h.svc.Graph()
	type atomView struct {
		graph.Atom
		Questions int `json:"questions"`
	}
	out := make([]atomView, 0, g.Len())
	for _, a := range g.Atoms() {
		out = append(out, atomView{Atom: a, Questions: g.DirectQuestionCount(a.ID)})
	}
	respondOK(c, gin.H{"course": g.Name(), "atoms": out})
}

// GET /v1/students/:id/plan
func (h *StudentHandler) GetPlan(c *gin.Context) {
	p, err := h.svc.GetPlan(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, p)
}

// POST /v1/students/:id/seeds
func (h *StudentHandler) Seed(c *gin.Context) {
	var req seedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", errors.Join(errBadBody, err))
		return
	}
	seeded, err := h.svc.SeedDiagnostic(c.Request.Context(), c.Param("id"), req.AtomIDs)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, gin.H{"seeded": seeded})
}

// GET /v1/students/:id/lesson
func (h *StudentHandler) GetLesson(c *gin.Context) {
	l, err := h.svc.GetLesson(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, l)
}

// POST /v1/students/:id/lesson/complete
func (h *StudentHandler) CompleteLesson(c *gin.Context) {
	step, err := h.svc.CompleteLesson(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, step)
}

// GET /v1/students/:id/question
func (h *StudentHandler) NextQuestion(c *gin.Context) {
	turn, err := h.svc.GetNextQuestion(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, turn)
}

// POST /v1/students/:id/answers
func (h *StudentHandler) SubmitAnswer(c *gin.Context) {
	req, ok := bindAnswer(c)
	if !ok {
		return
	}
	fb, err := h.svc.SubmitAnswer(c.Request.Context(), c.Param("id"), req.QuestionID, *req.Correct)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, fb)
}

// GET /v1/students/:id/review
func (h *StudentHandler) GetReview(c *gin.Context) {
	rs, err := h.svc.GetReviewSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, rs)
}

// POST /v1/students/:id/review/answers
func (h *StudentHandler) SubmitReviewAnswer(c *gin.Context) {
	req, ok := bindAnswer(c)
	if !ok {
		return
	}
	rs, err := h.svc.SubmitReviewAnswer(c.Request.Context(), c.Param("id"), req.QuestionID, *req.Correct)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, rs)
}

// POST /v1/students/:id/review/complete
func (h *StudentHandler) CompleteReview(c *gin.Context) {
	results, err := h.svc.CompleteReview(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, gin.H{"results": results})
}

type HealthHandler struct {
	ping func(*gin.Context) error
}

func NewHealthHandler(ping func(*gin.Context) error) *HealthHandler {
	return &HealthHandler{ping: ping}
}

// GET /healthz
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	if h.ping != nil {
		if err := h.ping(c); err != nil {
			respondError(c, http.StatusServiceUnavailable, "unavailable", err)
			return
		}
	}
	c.String(http.StatusOK, "ok")
}
