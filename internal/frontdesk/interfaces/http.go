package interfaces

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"lounge-desk/internal/audit"
	"lounge-desk/internal/auth"
	billinghttp "lounge-desk/internal/billing/interfaces"
	billing "lounge-desk/internal/billing/domain"
	frontdesk "lounge-desk/internal/frontdesk/application"
	lounge "lounge-desk/internal/loungeapi"
)

// Handler serves registration, menu and batch order APIs.
type Handler struct {
	service     *frontdesk.Service
	auditLogger audit.Logger
}

// NewHandler constructs a handler.
func NewHandler(service *frontdesk.Service, auditLogger audit.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("frontdesk handler: nil service")
	}
	return &Handler{service: service, auditLogger: auditLogger}, nil
}

// ServeHTTP handles /api/v1/registrations, /api/v1/menu and batch orders.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case path == "/api/v1/registrations" && r.Method == http.MethodPost:
		h.handleRegister(w, r)
		return
	case path == "/api/v1/registrations/today" && r.Method == http.MethodGet:
		h.handleToday(w, r)
		return
	case path == "/api/v1/menu" && r.Method == http.MethodGet:
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(h.service.Menu())
		return
	case strings.HasPrefix(path, "/api/v1/sessions/") && strings.HasSuffix(path, "/orders/batch") && r.Method == http.MethodPost:
		id := strings.TrimSuffix(strings.TrimPrefix(path, "/api/v1/sessions/"), "/orders/batch")
		h.handleBatch(w, r, id)
		return
	}
	w.WriteHeader(http.StatusNotFound)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string `json:"name"`
		Phone     string `json:"phone_number"`
		EntryTime string `json:"entry_time"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		billinghttp.RespondError(w, &billing.ValidationError{Field: "body", Reason: "invalid json"})
		return
	}
	var entry time.Time
	if req.EntryTime != "" {
		parsed, err := lounge.ParseTimestamp(req.EntryTime)
		if err != nil {
			billinghttp.RespondError(w, &billing.ValidationError{Field: "entry_time", Reason: "unrecognised timestamp"})
			return
		}
		entry = parsed
	}
	reg, err := h.service.Register(r.Context(), req.Name, req.Phone, entry)
	if err != nil {
		billinghttp.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(reg)
	h.logAudit(r, reg.SessionID, audit.ActionRegister, map[string]any{"name": reg.Name})
}

func (h *Handler) handleToday(w http.ResponseWriter, r *http.Request) {
	onlyActive := true
	if value := r.URL.Query().Get("onlyActive"); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			billinghttp.RespondError(w, &billing.ValidationError{Field: "onlyActive", Reason: "must be true or false"})
			return
		}
		onlyActive = parsed
	}
	regs, err := h.service.Today(r.Context(), onlyActive)
	if err != nil {
		billinghttp.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(regs)
}

func (h *Handler) handleBatch(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req struct {
		Quantities map[string]int `json:"quantities"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		billinghttp.RespondError(w, &billing.ValidationError{Field: "body", Reason: "invalid json"})
		return
	}
	result, err := h.service.PlaceOrder(r.Context(), sessionID, req.Quantities)
	var batchErr *frontdesk.BatchError
	if errors.As(err, &batchErr) {
		message := batchErr.Err.Error()
		var remoteErr *billing.RemoteError
		if errors.As(batchErr.Err, &remoteErr) {
			message = remoteErr.Message
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(billinghttp.StatusFor(batchErr.Err))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":       message,
			"failed_item": batchErr.Item,
			"placed":      result.Placed,
		})
		h.logAudit(r, sessionID, audit.ActionFoodOrder, map[string]any{"placed": len(result.Placed), "failed_item": batchErr.Item})
		return
	}
	if err != nil {
		billinghttp.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
	h.logAudit(r, sessionID, audit.ActionFoodOrder, map[string]any{"placed": len(result.Placed)})
}

func (h *Handler) logAudit(r *http.Request, sessionID, action string, meta map[string]any) {
	if h.auditLogger == nil {
		return
	}
	_ = h.auditLogger.Log(r.Context(), audit.Entry{
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: "session",
		ResourceID:   sessionID,
		SessionID:    sessionID,
		Metadata:     audit.Metadata(meta),
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	})
}
