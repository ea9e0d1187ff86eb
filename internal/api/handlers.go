package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	apperrors "opportunity-recommender/internal/common/errors"
	"opportunity-recommender/internal/common/logger"
	"opportunity-recommender/internal/models"
	"opportunity-recommender/internal/recommender"
)

type Recommender interface {
	Recommend(ctx context.Context, q recommender.Query) recommender.Envelope[models.RankedOpportunity]
	DefaultTopK() int
}

type Browser interface {
	Browse(ctx context.Context, section string, age *int, region string) recommender.Envelope[models.Opportunity]
	Sections() []string
}

// Check is a named readiness probe, e.g. a store ping.
type Check func(ctx context.Context) error

type Handler struct {
	service Recommender
	browser Browser
	checks  map[string]Check
	logger  logger.Logger
}

func NewHandler(service Recommender, browser Browser, checks map[string]Check, log logger.Logger) *Handler {
	return &Handler{
		service: service,
		browser: browser,
		checks:  checks,
		logger:  log.WithFields(map[string]interface{}{"component": "http"}),
	}
}

// Recommend serves GET /recommend?age=&region=&interests=&interests=&top_k=.
func (h *Handler) Recommend(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	age, err := optionalInt(q.Get("age"), "age")
	if err != nil {
		writeEnvelope(w, recommender.ErrorEnvelope[models.RankedOpportunity](err, recommender.RequestIDFrom(r.Context())))
		return
	}

	topK := h.service.DefaultTopK()
	if raw := q.Get("top_k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeEnvelope(w, recommender.ErrorEnvelope[models.RankedOpportunity](
				apperrors.NewValidationError("top_k", fmt.Sprintf("not an integer: %q", raw)),
				recommender.RequestIDFrom(r.Context())))
			return
		}
		topK = n
	}

	env := h.service.Recommend(r.Context(), recommender.Query{
		Age:       age,
		Interests: q["interests"],
		Region:    q.Get("region"),
		TopK:      topK,
	})
	writeEnvelope(w, env)
}

// Browse serves GET /browse/{section}?age=&region=.
func (h *Handler) Browse(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	age, err := optionalInt(q.Get("age"), "age")
	if err != nil {
		writeEnvelope(w, recommender.ErrorEnvelope[models.Opportunity](err, recommender.RequestIDFrom(r.Context())))
		return
	}

	env := h.browser.Browse(r.Context(), chi.URLParam(r, "section"), age, q.Get("region"))
	writeEnvelope(w, env)
}

func (h *Handler) Sections(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"sections": h.browser.Sections()})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// Ready runs every check; any failure reports 503.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			results[name] = err.Error()
			h.logger.Warn("readiness check failed", map[string]interface{}{"check": name, "error": err})
			continue
		}
		results[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	writeJSON(w, status, map[string]interface{}{"status": state, "checks": results})
}

func optionalInt(raw, field string) (*int, error) {
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, apperrors.NewValidationError(field, fmt.Sprintf("not an integer: %q", raw))
	}
	return &n, nil
}

func writeEnvelope[T any](w http.ResponseWriter, env recommender.Envelope[T]) {
	writeJSON(w, statusFor(env.Err), env)
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err *apperrors.StandardError) int {
	if err == nil {
		return http.StatusOK
	}
	switch err.Code {
	case apperrors.ErrCodeValidation:
		return http.StatusBadRequest
	case apperrors.ErrCodeUpstream:
		return http.StatusBadGateway
	case apperrors.ErrCodeUpstreamTimeout, apperrors.ErrCodeStoreTimeout:
		return http.StatusGatewayTimeout
	case apperrors.ErrCodeStore:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
