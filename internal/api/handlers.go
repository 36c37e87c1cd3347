package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"credit-ledger-go/internal/ledger"
	"credit-ledger-go/internal/models"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// =============================================================================
// HEALTH
// =============================================================================

func (s *LedgerService) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.HealthCheck(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable", Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// =============================================================================
// QUERIES
// =============================================================================

func (s *LedgerService) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := s.GetUserBalance(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

func (s *LedgerService) handleSufficient(w http.ResponseWriter, r *http.Request) {
	userId := chi.URLParam(r, "userId")

	required, err := strconv.ParseInt(r.URL.Query().Get("amount"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid query", fmt.Errorf("amount must be an integer: %w", err))
		return
	}

	ok, err := s.ledger.HasSufficientBalance(r.Context(), userId, required)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SufficiencyResponse{UserId: userId, Required: required, Sufficient: ok})
}

func (s *LedgerService) handleListEntries(w http.ResponseWriter, r *http.Request) {
	userId := chi.URLParam(r, "userId")

	filter, err := parseEntryFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid query", err)
		return
	}

	records, err := s.GetEntryHistory(r.Context(), userId, filter)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, EntryListResponse{
		UserId:  userId,
		Entries: records,
		Limit:   ledger.HistoryLimit(filter.Limit),
		Offset:  filter.Offset,
	})
}

func (s *LedgerService) handleReconcile(w http.ResponseWriter, r *http.Request) {
	rec, err := s.ledger.Reconcile(r.Context(), chi.URLParam(r, "userId"))
	// Drift is a finding, not a failed request.
	if err != nil && !errors.Is(err, ledger.ErrBalanceDrift) {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// =============================================================================
// MUTATIONS
// =============================================================================

func (s *LedgerService) handleAddCredits(w http.ResponseWriter, r *http.Request) {
	var req AddCreditsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	userId := chi.URLParam(r, "userId")
	entry, err := s.ledger.AddCredits(r.Context(), models.AddCreditsParams{
		UserId:      userId,
		Amount:      req.Amount,
		Type:        req.Type,
		Description: req.Description,
		PaymentId:   req.PaymentId,
		ExpireDays:  req.ExpireDays,
	})
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, s.entryResponse(r, userId, entry))
}

func (s *LedgerService) handleConsume(w http.ResponseWriter, r *http.Request) {
	var req ConsumeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	userId := chi.URLParam(r, "userId")
	entry, err := s.ledger.ConsumeCredits(r.Context(), userId, req.Amount, req.Description)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, s.entryResponse(r, userId, entry))
}

func (s *LedgerService) handleRefund(w http.ResponseWriter, r *http.Request) {
	var req RefundRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	userId := chi.URLParam(r, "userId")
	entry, err := s.ledger.RefundCredits(r.Context(), models.RefundParams{
		UserId:                userId,
		Amount:                req.Amount,
		Reason:                req.Reason,
		OriginalTransactionId: req.OriginalTransactionId,
		Metadata:              req.Metadata,
	})
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, s.entryResponse(r, userId, entry))
}

func (s *LedgerService) handleSweep(w http.ResponseWriter, r *http.Request) {
	result, err := s.ledger.SweepExpired(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// entryResponse attaches the post-write balance when it can be read. The
// write already committed, so a failed read only drops the field.
func (s *LedgerService) entryResponse(r *http.Request, userId string, entry *models.Entry) EntryResponse {
	resp := EntryResponse{Entry: models.NewEntryRecord(*entry)}

	balance, err := s.ledger.GetBalance(r.Context(), userId)
	if err != nil {
		zap.L().Warn("Failed to read balance after write",
			zap.String("user_id", userId),
			zap.Error(err))
		return resp
	}
	resp.Balance = &balance
	return resp
}

// =============================================================================
// HELPERS
// =============================================================================

func parseEntryFilter(r *http.Request) (models.EntryFilter, error) {
	q := r.URL.Query()
	var filter models.EntryFilter

	if raw := q.Get("types"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			t, ok := models.ParseEntryType(strings.TrimSpace(part))
			if !ok {
				return filter, fmt.Errorf("unknown entry type %q", part)
			}
			filter.Types = append(filter.Types, t)
		}
	}

	if raw := q.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, fmt.Errorf("since must be RFC3339: %w", err)
		}
		filter.Since = since.UTC()
	}

	var err error
	if filter.Limit, err = queryInt(q.Get("limit")); err != nil {
		return filter, fmt.Errorf("invalid limit: %w", err)
	}
	if filter.Offset, err = queryInt(q.Get("offset")); err != nil {
		return filter, fmt.Errorf("invalid offset: %w", err)
	}
	if filter.Offset < 0 {
		return filter, fmt.Errorf("offset must not be negative")
	}

	return filter, nil
}

func queryInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// errorStatus maps ledger sentinels onto HTTP status codes. Drift comes
// first: it can wrap ErrInsufficientCredits but is a server fault.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ledger.ErrBalanceDrift):
		return http.StatusInternalServerError, "balance drift"
	case errors.Is(err, ledger.ErrInvalidParameter):
		return http.StatusBadRequest, "invalid parameter"
	case errors.Is(err, ledger.ErrInsufficientCredits):
		return http.StatusPaymentRequired, "insufficient credits"
	case errors.Is(err, ledger.ErrTransactionNotFound):
		return http.StatusNotFound, "transaction not found"
	case errors.Is(err, ledger.ErrDuplicateRefund):
		return http.StatusConflict, "duplicate refund"
	case errors.Is(err, ledger.ErrRefundWindowExpired):
		return http.StatusUnprocessableEntity, "refund window expired"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func writeLedgerError(w http.ResponseWriter, err error) {
	status, message := errorStatus(err)
	if status == http.StatusInternalServerError {
		zap.L().Error("Ledger request failed", zap.Error(err))
		writeError(w, status, message, nil)
		return
	}
	writeError(w, status, message, err)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Debug("Failed to write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
