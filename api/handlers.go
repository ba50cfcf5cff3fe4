/*
handlers.go - HTTP API handlers for the kudo bank

PURPOSE:
  Exposes the kudos.Service via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the service.

ENDPOINTS:
  POST   /api/kudos              Give one kudo (signed by `from`)
  GET    /api/kudos              Leaderboard (?limit=N)
  GET    /api/kudos/{principal}  Count for a principal
  GET    /api/events             Websocket stream of credits
  GET    /api/health             Liveness

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Malformed body, principal, timestamp or signature encoding
  - 401: Signature missing, invalid, stale or replayed
  - 409: Recipient count already at maximum
  - 500: Ledger read/write failure

SEE ALSO:
  - dto.go: Request/response data structures
  - events.go: Websocket hub
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/warp/kudobank/kudos"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *kudos.Service
	Events  *Hub
}

// NewHandler creates a new handler. events may be nil, in which case
// /api/events is not served.
func NewHandler(svc *kudos.Service, events *Hub) *Handler {
	return &Handler{
		Service: svc,
		Events:  events,
	}
}

// =============================================================================
// KUDO HANDLERS
// =============================================================================

// GiveKudos credits one kudo from the signer to the recipient.
func (h *Handler) GiveKudos(w http.ResponseWriter, r *http.Request) {
	var req GiveKudosRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	from, err := kudos.ParsePrincipal(req.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from principal", err)
		return
	}
	to, err := kudos.ParsePrincipal(req.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to principal", err)
		return
	}

	issuedAt, err := time.Parse(time.RFC3339, req.IssuedAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid issued_at format (use RFC3339)", err)
		return
	}

	sig, err := hex.DecodeString(req.Signature)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid signature encoding (use hex)", err)
		return
	}

	proof := kudos.Proof{Nonce: req.Nonce, IssuedAt: issuedAt, Signature: sig}
	count, err := h.Service.Credit(r.Context(), from, to, proof)
	if err != nil {
		writeServiceError(w, "Failed to give kudos", err)
		return
	}

	writeJSON(w, http.StatusCreated, KudosDTO{Principal: to.String(), Count: uint32(count)})
}

// GetKudos returns the count for a principal. Unknown principals have 0.
func (h *Handler) GetKudos(w http.ResponseWriter, r *http.Request) {
	user, err := kudos.ParsePrincipal(chi.URLParam(r, "principal"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid principal", err)
		return
	}

	count, err := h.Service.GetKudos(r.Context(), user)
	if err != nil {
		writeServiceError(w, "Failed to get kudos", err)
		return
	}

	writeJSON(w, http.StatusOK, KudosDTO{Principal: user.String(), Count: uint32(count)})
}

// Leaderboard returns principals ordered by count.
func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	standings, err := h.Service.Leaderboard(r.Context(), limit)
	if err != nil {
		writeServiceError(w, "Failed to load leaderboard", err)
		return
	}

	dtos := make([]StandingDTO, len(standings))
	for i, s := range standings {
		dtos[i] = StandingDTO{
			Rank:      s.Rank,
			Principal: s.Principal.String(),
			Count:     uint32(s.Count),
			Share:     s.Share.StringFixed(2),
		}
	}

	writeJSON(w, http.StatusOK, LeaderboardDTO{Standings: dtos})
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeServiceError maps the kudos error taxonomy onto HTTP status codes.
func writeServiceError(w http.ResponseWriter, message string, err error) {
	writeError(w, statusFor(err), message, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, kudos.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, kudos.ErrArithmeticOverflow):
		return http.StatusConflict
	case errors.Is(err, kudos.ErrInvalidPrincipal):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// eventDTO converts a service event for the wire.
func eventDTO(e kudos.Event) EventDTO {
	return EventDTO{
		Type:  "kudo_given",
		ID:    e.ID,
		From:  e.From.String(),
		To:    e.To.String(),
		Count: uint32(e.Count),
		At:    e.At.Format(time.RFC3339),
	}
}
