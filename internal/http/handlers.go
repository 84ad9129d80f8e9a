package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/haski/recengine/internal/escalation"
	"github.com/haski/recengine/internal/metrics"
	"github.com/haski/recengine/internal/pipeline"
	"github.com/haski/recengine/internal/rules"
	"github.com/haski/recengine/pkg/events"
	"github.com/haski/recengine/pkg/skincare"
)

// UserHeader carries the caller identity set by the upstream gateway.
const UserHeader = "X-User-ID"

const maxBodyBytes = 1 << 20

// Service is the pipeline surface the API exposes.
type Service interface {
	Recommend(ctx context.Context, req pipeline.Request) (*pipeline.Response, error)
	Get(ctx context.Context, id string) (*pipeline.Response, error)
	SubmitFeedback(ctx context.Context, fb skincare.FeedbackRecord) (*pipeline.FeedbackResult, error)
	Feedback(ctx context.Context, recommendationID string) (*pipeline.FeedbackSummary, error)
}

type API struct {
	svc     Service
	rules   *rules.Store
	logger  zerolog.Logger
	timeout time.Duration
}

// New returns the API. A zero timeout leaves request contexts untouched.
func New(svc Service, store *rules.Store, timeout time.Duration, logger zerolog.Logger) *API {
	return &API{svc: svc, rules: store, timeout: timeout, logger: logger}
}

func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /recommend", a.recommend)
	mux.HandleFunc("GET /recommendations/{id}", a.recommendation)
	mux.HandleFunc("GET /recommendations/{id}/feedback", a.listFeedback)
	mux.HandleFunc("POST /recommendations/{id}/feedback", a.submitFeedback)
	mux.HandleFunc("GET /rules", a.listRules)
	mux.HandleFunc("POST /rules/reload", a.reloadRules)
}

func (a *API) recommend(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req pipeline.Request
	if !a.decode(w, r, &req) {
		metrics.Requests.WithLabelValues("http", "recommend", "invalid").Inc()
		return
	}
	req.UserID = userID

	ctx, cancel := a.context(r)
	defer cancel()

	resp, err := a.svc.Recommend(ctx, req)
	metrics.Requests.WithLabelValues("http", "recommend", pipeline.Outcome(err)).Inc()
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) recommendation(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	ctx, cancel := a.context(r)
	defer cancel()

	resp, ok := a.owned(ctx, w, r.PathValue("id"), userID)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) submitFeedback(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var fb skincare.FeedbackRecord
	if !a.decode(w, r, &fb) {
		metrics.Requests.WithLabelValues("http", "feedback", "invalid").Inc()
		return
	}
	fb.RecommendationID = r.PathValue("id")

	ctx, cancel := a.context(r)
	defer cancel()

	if _, ok := a.owned(ctx, w, fb.RecommendationID, userID); !ok {
		return
	}
	res, err := a.svc.SubmitFeedback(ctx, fb)
	metrics.Requests.WithLabelValues("http", "feedback", pipeline.Outcome(err)).Inc()
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (a *API) listFeedback(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	ctx, cancel := a.context(r)
	defer cancel()

	id := r.PathValue("id")
	if _, ok := a.owned(ctx, w, id, userID); !ok {
		return
	}
	summary, err := a.svc.Feedback(ctx, id)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type ruleView struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Priority         int      `json:"priority"`
	Conditions       int      `json:"conditions"`
	AvoidIf          []string `json:"avoid_if,omitempty"`
	AvoidIngredients []string `json:"avoid_ingredients,omitempty"`
	Escalation       string   `json:"escalation,omitempty"`
}

type catalogView struct {
	Version  string     `json:"version"`
	Checksum string     `json:"checksum"`
	Source   string     `json:"source,omitempty"`
	LoadedAt time.Time  `json:"loaded_at"`
	Rules    []ruleView `json:"rules"`
}

func viewCatalog(cat *rules.Catalog) catalogView {
	view := catalogView{
		Version:  cat.Version(),
		Checksum: cat.Checksum(),
		Source:   cat.Source(),
		LoadedAt: cat.LoadedAt(),
		Rules:    make([]ruleView, 0, cat.Len()),
	}
	for _, rule := range cat.Rules() {
		rv := ruleView{
			ID:               rule.ID,
			Name:             rule.Name,
			Priority:         rule.Priority,
			Conditions:       len(rule.Conditions),
			AvoidIf:          rule.AvoidIf,
			AvoidIngredients: rule.AvoidIngredients,
		}
		if level := rule.Actions.EscalationLevel(); level != escalation.None {
			rv.Escalation = level.String()
		}
		view.Rules = append(view.Rules, rv)
	}
	return view
}

func (a *API) listRules(w http.ResponseWriter, _ *http.Request) {
	cat := a.rules.Current()
	if cat == nil {
		writeError(w, http.StatusServiceUnavailable, events.CodeUnavailable, "no rule catalog loaded", nil)
		return
	}
	writeJSON(w, http.StatusOK, viewCatalog(cat))
}

func (a *API) reloadRules(w http.ResponseWriter, _ *http.Request) {
	cat, err := pipeline.ReloadCatalog(a.rules, a.logger)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, events.CodeInvalid, err.Error(), nil)
		return
	}
	if cat == nil {
		writeError(w, http.StatusServiceUnavailable, events.CodeUnavailable, "no rule catalog loaded", nil)
		return
	}
	writeJSON(w, http.StatusOK, viewCatalog(cat))
}

// owned loads a recommendation and hides it from anyone but its owner.
func (a *API) owned(ctx context.Context, w http.ResponseWriter, id, userID string) (*pipeline.Response, bool) {
	resp, err := a.svc.Get(ctx, id)
	if err != nil {
		a.fail(w, err)
		return nil, false
	}
	if resp.UserID != userID {
		writeError(w, http.StatusNotFound, events.CodeNotFound, pipeline.ErrNotFound.Error(), nil)
		return nil, false
	}
	return resp, true
}

func (a *API) context(r *http.Request) (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), a.timeout)
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, events.CodeInvalid, "request body too large", nil)
		return false
	}
	if err := pipeline.Decode(body, v); err != nil {
		a.fail(w, err)
		return false
	}
	return true
}

func (a *API) fail(w http.ResponseWriter, err error) {
	var ve *skincare.ValidationError
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, events.CodeInvalid, ve.Error(), ve.Fields)
	case errors.Is(err, pipeline.ErrNotFound):
		writeError(w, http.StatusNotFound, events.CodeNotFound, err.Error(), nil)
	case errors.Is(err, pipeline.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, events.CodeUnavailable, err.Error(), nil)
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, events.CodeUnavailable, "request timed out", nil)
	default:
		a.logger.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, events.CodeInternal, "internal error", nil)
	}
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.Header.Get(UserHeader)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, events.CodeInvalid, UserHeader+" header required", nil)
		return "", false
	}
	return userID, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string, fields []skincare.FieldError) {
	writeJSON(w, status, events.ReplyError{Code: code, Message: msg, Fields: fields})
}
