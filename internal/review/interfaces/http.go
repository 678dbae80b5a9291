package interfaces

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"lounge-desk/internal/audit"
	"lounge-desk/internal/auth"
	billinghttp "lounge-desk/internal/billing/interfaces"
	billing "lounge-desk/internal/billing/domain"
	"lounge-desk/internal/observability/metrics"
	review "lounge-desk/internal/review/application"
)

const dateLayout = "2006-01-02"

// Handler serves the bill review APIs under /api/v1/review.
type Handler struct {
	board       *review.Board
	auditLogger audit.Logger
	currency    string
}

// NewHandler constructs a handler.
func NewHandler(board *review.Board, auditLogger audit.Logger, currency string) (*Handler, error) {
	if board == nil {
		return nil, errors.New("review handler: nil board")
	}
	return &Handler{board: board, auditLogger: auditLogger, currency: currency}, nil
}

type tableResponse struct {
	Date        string        `json:"date"`
	AllVerified bool          `json:"all_verified"`
	Bills       []review.Bill `json:"bills"`
}

// ServeHTTP routes review requests.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case path == "/api/v1/review/bills" && r.Method == http.MethodGet:
		h.handleList(w, r)
		return
	case path == "/api/v1/review/bills/shift" && r.Method == http.MethodPost:
		h.handleShift(w, r)
		return
	case path == "/api/v1/review/bills/export.xlsx" && r.Method == http.MethodGet:
		h.handleExport(w, r)
		return
	case strings.HasPrefix(path, "/api/v1/review/bills/") && strings.HasSuffix(path, "/toggle") && r.Method == http.MethodPost:
		userID := strings.TrimSuffix(strings.TrimPrefix(path, "/api/v1/review/bills/"), "/toggle")
		h.handleToggle(w, r, userID)
		return
	}
	w.WriteHeader(http.StatusNotFound)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	day, err := h.dayParam(r)
	if err != nil {
		billinghttp.RespondError(w, err)
		return
	}
	if _, err := h.board.Load(r.Context(), day); err != nil {
		billinghttp.RespondError(w, err)
		return
	}
	h.writeTable(w)
}

func (h *Handler) handleShift(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Days int `json:"days"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		billinghttp.RespondError(w, &billing.ValidationError{Field: "body", Reason: "invalid json"})
		return
	}
	if _, err := h.board.ShiftDay(r.Context(), req.Days); err != nil {
		billinghttp.RespondError(w, err)
		return
	}
	h.writeTable(w)
}

func (h *Handler) handleToggle(w http.ResponseWriter, r *http.Request, userID string) {
	bill, err := h.board.Toggle(r.Context(), userID)
	if err != nil {
		billinghttp.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(bill)
	h.logAudit(r, userID, audit.ActionBillVerify, map[string]any{"bill_verified": bill.Verified})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveExport("bills_xlsx", result, time.Since(start))
	}()

	day, err := h.dayParam(r)
	if err != nil {
		result = metrics.ResultError
		billinghttp.RespondError(w, err)
		return
	}
	bills, err := h.board.Load(r.Context(), day)
	if err != nil {
		result = metrics.ResultError
		billinghttp.RespondError(w, err)
		return
	}
	data, err := BuildBillsXLSX(day.Format(dateLayout), bills, h.currency)
	if err != nil {
		result = metrics.ResultError
		http.Error(w, "export xlsx error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename=bills-"+day.Format(dateLayout)+".xlsx")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
	h.logAudit(r, day.Format(dateLayout), audit.ActionBillsExport, map[string]any{"rows": len(bills)})
}

func (h *Handler) dayParam(r *http.Request) (time.Time, error) {
	value := r.URL.Query().Get("date")
	if value == "" {
		return h.board.Day(), nil
	}
	day, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, &billing.ValidationError{Field: "date", Reason: "must be YYYY-MM-DD"}
	}
	return day, nil
}

func (h *Handler) writeTable(w http.ResponseWriter) {
	resp := tableResponse{
		Date:        h.board.Day().Format(dateLayout),
		AllVerified: h.board.AllVerified(),
		Bills:       h.board.Bills(),
	}
	if resp.Bills == nil {
		resp.Bills = []review.Bill{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *Handler) logAudit(r *http.Request, resourceID, action string, meta map[string]any) {
	if h.auditLogger == nil {
		return
	}
	_ = h.auditLogger.Log(r.Context(), audit.Entry{
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: "bill",
		ResourceID:   resourceID,
		Metadata:     audit.Metadata(meta),
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	})
}
