package server

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/hanashi-ai/hanashi/internal/catalog"
	"github.com/hanashi-ai/hanashi/internal/history"
	"github.com/hanashi-ai/hanashi/internal/model"
	"github.com/hanashi-ai/hanashi/internal/route"
)

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	router              *route.Holder
	catalog             *catalog.Catalog
	history             *history.Store
	logger              *slog.Logger
	startedAt           time.Time
	version             string
	maxRequestBodyBytes int64
}

// HandlersDeps holds all dependencies for constructing Handlers.
// Optional (nil-safe): History.
type HandlersDeps struct {
	Router              *route.Holder
	Catalog             *catalog.Catalog
	History             *history.Store
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	return &Handlers{
		router:              d.Router,
		catalog:             d.Catalog,
		history:             d.History,
		logger:              d.Logger,
		startedAt:           time.Now(),
		version:             d.Version,
		maxRequestBodyBytes: d.MaxRequestBodyBytes,
	}
}

// HandleTurn handles POST /v1/turn: routes one utterance to a decision.
func (h *Handlers) HandleTurn(w http.ResponseWriter, r *http.Request) {
	var req model.TurnRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := model.ValidateTurnText(req.Text); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	conversationID := uuid.New()
	if req.ConversationID != "" {
		parsed, err := uuid.Parse(req.ConversationID)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "conversation_id must be a UUID")
			return
		}
		conversationID = parsed
	}

	turn := model.Turn{
		ID:             uuid.New(),
		ConversationID: conversationID,
		Text:           req.Text,
		Language:       req.Language,
		ReceivedAt:     time.Now().UTC(),
	}

	router := h.router.Current()
	if req.Debug != "" {
		router = router.WithDebug(model.ParseDebugLevel(req.Debug))
	}

	decision, err := router.Route(r.Context(), turn)
	if err != nil {
		// Terminal routing failure: the decision still carries the apology
		// response, so it is returned alongside the error code.
		h.logger.Warn("turn routing failed", "turn_id", turn.ID, "error", err)
	}

	resp := model.TurnResponse{
		TurnID:         decision.TurnID.String(),
		ConversationID: decision.ConversationID.String(),
		Stage:          decision.Stage,
		Outcome:        decision.Outcome,
		Response:       decision.Response,
		Executed:       decision.Executed,
		DurationMS:     decision.Duration.Milliseconds(),
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// HandleRecentTurns handles GET /v1/turns/recent.
func (h *Handlers) HandleRecentTurns(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "turn history is disabled")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "limit must be an integer")
			return
		}
		limit = parsed
	}

	records, err := h.history.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("recent turns query failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to query turn history")
		return
	}
	if records == nil {
		records = []history.Record{}
	}
	writeJSON(w, r, http.StatusOK, records)
}

// HandleRefreshCatalog handles POST /v1/catalog/refresh.
func (h *Handlers) HandleRefreshCatalog(w http.ResponseWriter, r *http.Request) {
	snap, err := h.catalog.Refresh(r.Context())
	if err != nil {
		h.logger.Error("catalog refresh failed", "error", err)
		writeError(w, r, http.StatusBadGateway, model.ErrCodeInternalError, "catalog refresh failed")
		return
	}
	writeJSON(w, r, http.StatusOK, model.RefreshResponse{
		Entities:  len(snap.Entities),
		BuiltAt:   snap.BuiltAt,
		Refreshed: true,
	})
}

// HandleEntities handles GET /v1/entities: the current catalog snapshot.
func (h *Handlers) HandleEntities(w http.ResponseWriter, r *http.Request) {
	snap, err := h.catalog.Ensure(r.Context())
	if err != nil {
		h.logger.Error("catalog unavailable", "error", err)
		writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeInternalError, "entity catalog unavailable")
		return
	}
	writeJSON(w, r, http.StatusOK, snap.Entities)
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	httpStatus := http.StatusOK

	resp := model.HealthResponse{
		Version: h.version,
		Uptime:  int64(time.Since(h.startedAt).Seconds()),
	}

	if snap := h.catalog.Current(); snap != nil {
		resp.CatalogEntities = len(snap.Entities)
		resp.CatalogAge = snap.Age().Round(time.Second).String()
	} else {
		status = "degraded"
	}

	if h.history != nil {
		if err := h.history.Healthy(r.Context()); err == nil {
			resp.History = "ok"
		} else {
			resp.History = "unavailable"
			status = "degraded"
		}
	} else {
		resp.History = "disabled"
	}

	resp.Status = status
	writeJSON(w, r, httpStatus, resp)
}
