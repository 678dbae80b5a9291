package interfaces

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"lounge-desk/internal/audit"
	"lounge-desk/internal/auth"
	billingapp "lounge-desk/internal/billing/application"
	billing "lounge-desk/internal/billing/domain"
	"lounge-desk/internal/observability/metrics"
)

const sessionsPrefix = "/api/v1/sessions/"

// SessionHandler handles session billing APIs under /api/v1/sessions.
type SessionHandler struct {
	desk        *billingapp.Desk
	broker      *SSEBroker
	auditLogger audit.Logger
	currency    string
	logger      *log.Logger
}

// NewSessionHandler constructs a handler.
func NewSessionHandler(desk *billingapp.Desk, broker *SSEBroker, auditLogger audit.Logger, currency string, logger *log.Logger) (*SessionHandler, error) {
	if desk == nil {
		return nil, errors.New("session handler: nil desk")
	}
	if currency == "" {
		currency = "INR"
	}
	return &SessionHandler{desk: desk, broker: broker, auditLogger: auditLogger, currency: currency, logger: logger}, nil
}

// ServeHTTP routes /api/v1/sessions/{id}/...
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, sessionsPrefix)
	if rest == "" || rest == r.URL.Path {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	parts := strings.Split(strings.TrimSuffix(rest, "/"), "/")
	id := parts[0]
	if id == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch len(parts) {
	case 1:
		switch r.Method {
		case http.MethodGet:
			h.handleGet(w, r, id)
			return
		case http.MethodDelete:
			h.handleClose(w, r, id)
			return
		}
	case 2:
		if h.routeAction(w, r, id, parts[1]) {
			return
		}
	case 3:
		if parts[1] == "food" && r.Method == http.MethodPatch {
			h.handleUpdateLine(w, r, id, parts[2])
			return
		}
		if parts[1] == "food" && r.Method == http.MethodGet {
			h.handleLineCost(w, r, id, parts[2])
			return
		}
	case 4:
		if parts[1] == "stations" {
			switch {
			case parts[3] == "start" && r.Method == http.MethodPost:
				h.handleStart(w, r, id, parts[2])
				return
			case parts[3] == "end" && r.Method == http.MethodPost:
				h.handleEnd(w, r, id, parts[2])
				return
			case parts[3] == "elapsed" && r.Method == http.MethodGet:
				h.handleElapsed(w, r, id, parts[2])
				return
			case parts[3] == "rate" && r.Method == http.MethodPut:
				h.handleRate(w, r, id, parts[2])
				return
			}
		}
	}
	w.WriteHeader(http.StatusNotFound)
}

func (h *SessionHandler) routeAction(w http.ResponseWriter, r *http.Request, id, action string) bool {
	switch {
	case action == "open" && r.Method == http.MethodPost:
		h.handleOpen(w, r, id)
	case action == "refresh" && r.Method == http.MethodPost:
		h.handleRefresh(w, r, id)
	case action == "food" && r.Method == http.MethodPost:
		h.handleAddLine(w, r, id)
	case action == "discount" && r.Method == http.MethodPut:
		h.handleDiscount(w, r, id)
	case action == "totals" && r.Method == http.MethodGet:
		h.handleTotals(w, r, id)
	case action == "finalize" && r.Method == http.MethodPost:
		h.handleFinalize(w, r, id)
	case action == "end" && r.Method == http.MethodPost:
		h.handleEndSession(w, r, id)
	case action == "stream" && r.Method == http.MethodGet:
		h.handleStream(w, r, id)
	case action == "receipt.pdf" && r.Method == http.MethodGet:
		h.handleReceipt(w, r, id, "pdf")
	case action == "receipt.xlsx" && r.Method == http.MethodGet:
		h.handleReceipt(w, r, id, "xlsx")
	default:
		return false
	}
	return true
}

func (h *SessionHandler) handleOpen(w http.ResponseWriter, r *http.Request, id string) {
	engine, err := h.desk.Open(r.Context(), id)
	if err != nil {
		RespondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, engine.View())
}

func (h *SessionHandler) handleGet(w http.ResponseWriter, r *http.Request, id string) {
	engine, err := h.desk.Get(id)
	if err != nil {
		RespondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, engine.View())
}

func (h *SessionHandler) handleClose(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.desk.Close(id); err != nil {
		RespondError(w, err)
		return
	}
	h.broker.CloseSession(id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandler) handleRefresh(w http.ResponseWriter, r *http.Request, id string) {
	engine, err := h.desk.Get(id)
	if err != nil {
		RespondError(w, err)
		return
	}
	if err := engine.Refresh(r.Context()); err != nil {
		RespondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, engine.View())
}

func (h *SessionHandler) handleStart(w http.ResponseWriter, r *http.Request, id, kindValue string) {
	var req struct {
		Rate *float64 `json:"rate"`
	}
	if err := decodeOptional(r, &req); err != nil {
		RespondError(w, err)
		return
	}
	engine, err := h.desk.Get(id)
	if err != nil {
		RespondError(w, err)
		return
	}
	kind, err := billing.ParseKind(kindValue)
	if err != nil {
		RespondError(w, err)
		return
	}
	rate := engine.DefaultRate(kind)
	if req.Rate != nil {
		rate = *req.Rate
	}
	station, err := engine.Start(r.Context(), kind, rate)
	if err != nil {
		RespondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, engine.View())
	h.logAudit(r, id, strconv.FormatInt(station.ID, 10), "station", audit.ActionStationStart, map[string]any{
		"kind": kind.String(),
		"rate": rate,
	})
}

func (h *SessionHandler) handleEnd(w http.ResponseWriter, r *http.Request, id, kindValue string) {
	engine, err := h.desk.Get(id)
	if err != nil {
		RespondError(w, err)
		return
	}
	station, err := engine.End(r.Context(), billing.Kind(kindValue))
	if err != nil {
		RespondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, engine.View())
	h.logAudit(r, id, strconv.FormatInt(station.ID, 10), "station", audit.ActionStationEnd, map[string]any{
		"kind": station.Kind.String(),
	})
}

func (h *SessionHandler) handleElapsed(w http.ResponseWriter, r *http.Request, id, kindValue string) {
	engine, err := h.desk.Get(id)
	if err != nil {
		RespondError(w, err)
		return
	}
	elapsed, err := engine.Elapsed(billing.Kind(kindValue))
	if err != nil {
		RespondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"kind": kindValue, "elapsed": elapsed})
}

func (h *SessionHandler) handleRate(w http.ResponseWriter, r *http.Request, id, stationValue string) {
	stationID, err := strconv.ParseInt(stationValue, 10, 64)
	if err != nil {
		RespondError(w, &billing.ValidationError{Field: "station_id", Reason: "must be an integer"})
		return
	}
	var req struct {
		Value json.RawMessage `json:"value"`
	}
	if err := decodeOptional(r, &req); err != nil {
		RespondError(w, err)
		return
	}
	engine, err := h.desk.Get(id)
	if err != nil {
		RespondError(w, err)
		return
	}
	if err := engine.CorrectRate(stationID, rawValue(req.Value)); err != nil {
		RespondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, engine.View())
}

func (h *SessionHandler) handleAddLine(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		Item     string  `json:"item_name"`
		Price    float64 `json:"price"`
		Quantity int     `json:"quantity"`
	}
	if err := decodeOptional(r, &req); err != nil {
		RespondError(w, err)
		return
	}
	engine, err := h.desk.Get(id)
	if err != nil {
		RespondError(w, err)
		return
	}
	line, err := engine.AddLine(r.Context(), req.Item, req.Price, req.Quantity)
	if err != nil {
		RespondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, engine.View())
	h.logAudit(r, id, strconv.FormatInt(line.ID, 10), "food_line", audit.ActionFoodOrder, map[string]any{
		"item":     line.Item,
		"quantity": line.Quantity,
		"price":    line.Price,
	})
}

func (h *SessionHandler) handleUpdateLine(w http.ResponseWriter, r *http.Request, id, lineValue string) {
	lineID, err := strconv.ParseInt(lineValue, 10, 64)
	if err != nil {
		RespondError(w, &billing.ValidationError{Field: "line_id", Reason: "must be an integer"})
		return
	}
	var req struct {
		Field string          `json:"field"`
		Value json.RawMessage `json:"value"`
	}
	if err := decodeOptional(r, &req); err != nil {
		RespondError(w, err)
		return
	}
	engine, err := h.desk.Get(id)
	if err != nil {
		RespondError(w, err)
		return
	}
	if err := engine.UpdateLine(lineID, req.Field, rawValue(req.Value)); err != nil {
		RespondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, engine.View())
}

func (h *SessionHandler) handleLineCost(w http.ResponseWriter, r *http.Request, id, lineValue string) {
	lineID, err := strconv.ParseInt(lineValue, 10, 64)
	if err != nil {
		RespondError(w, &billing.ValidationError{Field: "line_id", Reason: "must be an integer"})
		return
	}
	engine, err := h.desk.Get(id)
	if err != nil {
		RespondError(w, err)
		return
	}
	cost, err := engine.LineCost(lineID)
	if err != nil {
		RespondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": lineID, "cost": billing.FormatAmount(cost)})
}

func (h *SessionHandler) handleDiscount(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		Discount *float64 `json:"discount_percentage"`
	}
	if err := decodeOptional(r, &req); err != nil {
		RespondError(w, err)
		return
	}
	if req.Discount == nil {
		RespondError(w, &billing.ValidationError{Field: "discount_percentage", Reason: "is required"})
		return
	}
	engine, err := h.desk.Get(id)
	if err != nil {
		RespondError(w, err)
		return
	}
	if err := engine.SetDiscount(*req.Discount); err != nil {
		RespondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, engine.View())
}

func (h *SessionHandler) handleTotals(w http.ResponseWriter, r *http.Request, id string) {
	engine, err := h.desk.Get(id)
	if err != nil {
		RespondError(w, err)
		return
	}
	discount := engine.View().Discount
	if value := r.URL.Query().Get("discount"); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			RespondError(w, &billing.ValidationError{Field: "discount", Reason: "must be a number"})
			return
		}
		discount = parsed
	}
	total := engine.TotalCost()
	final, err := billing.ApplyDiscount(total, discount)
	if err != nil {
		RespondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":               billing.FormatAmount(total),
		"discount_percentage": discount,
		"final":               billing.FormatAmount(final),
	})
}

func (h *SessionHandler) handleFinalize(w http.ResponseWriter, r *http.Request, id string) {
	engine, err := h.desk.Get(id)
	if err != nil {
		RespondError(w, err)
		return
	}
	view, err := engine.Finalize(r.Context())
	if err != nil {
		RespondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
	h.logAudit(r, id, id, "session", audit.ActionBillFinalize, map[string]any{
		"discount_percentage": view.Discount,
		"total":               view.Total,
		"final":               view.Final,
	})
}

func (h *SessionHandler) handleEndSession(w http.ResponseWriter, r *http.Request, id string) {
	engine, err := h.desk.Get(id)
	if err != nil {
		RespondError(w, err)
		return
	}
	if err := engine.EndSession(r.Context()); err != nil {
		RespondError(w, err)
		return
	}
	view := engine.View()
	h.desk.Forget(id)
	h.broker.CloseSession(id)
	writeJSON(w, http.StatusOK, view)
	h.logAudit(r, id, id, "session", audit.ActionSessionEnd, map[string]any{
		"final": view.Final,
	})
}

func (h *SessionHandler) handleReceipt(w http.ResponseWriter, r *http.Request, id, format string) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveExport("receipt_"+format, result, time.Since(start))
	}()

	engine, err := h.desk.Get(id)
	if err != nil {
		result = metrics.ResultError
		RespondError(w, err)
		return
	}
	view := engine.View()
	var data []byte
	contentType := "application/pdf"
	if format == "pdf" {
		data, err = BuildReceiptPDF(view, h.currency)
	} else {
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		data, err = BuildReceiptXLSX(view, h.currency)
	}
	if err != nil {
		result = metrics.ResultError
		if h.logger != nil {
			h.logger.Printf("receipt export error: session=%s format=%s err=%v", id, format, err)
		}
		http.Error(w, "export "+format+" error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "attachment; filename=receipt-"+id+"."+format)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
	h.logAudit(r, id, id, "session", audit.ActionReceiptExport, map[string]any{"format": format})
}

func (h *SessionHandler) logAudit(r *http.Request, sessionID, resourceID, resourceType, action string, meta map[string]any) {
	if h.auditLogger == nil {
		return
	}
	err := h.auditLogger.Log(r.Context(), audit.Entry{
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		SessionID:    sessionID,
		Metadata:     audit.Metadata(meta),
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	})
	if err != nil && h.logger != nil {
		h.logger.Printf("audit write error: action=%s session=%s err=%v", action, sessionID, err)
	}
}

// decodeOptional decodes a JSON body, treating an empty body as no fields.
func decodeOptional(r *http.Request, out any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return &billing.ValidationError{Field: "body", Reason: "invalid json"}
	}
	return nil
}

// rawValue returns a JSON string's contents or the literal text of any other value.
func rawValue(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	return string(raw)
}
