package api

import "credit-ledger-go/internal/models"

// =============================================================================
// REQUEST DTOs
// =============================================================================

type AddCreditsRequest struct {
	Amount      int64            `json:"amount"`
	Type        models.EntryType `json:"type"`
	Description string           `json:"description"`
	PaymentId   string           `json:"payment_id,omitempty"`
	ExpireDays  *int             `json:"expire_days,omitempty"`
}

type ConsumeRequest struct {
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
}

type RefundRequest struct {
	Amount                int64             `json:"amount"`
	Reason                string            `json:"reason"`
	OriginalTransactionId string            `json:"original_transaction_id,omitempty"`
	Metadata              map[string]string `json:"metadata,omitempty"`
}

// =============================================================================
// RESPONSE DTOs
// =============================================================================

type EntryResponse struct {
	Entry   models.EntryRecord `json:"entry"`
	Balance *int64             `json:"balance,omitempty"`
}

type SufficiencyResponse struct {
	UserId     string `json:"user_id"`
	Required   int64  `json:"required"`
	Sufficient bool   `json:"sufficient"`
}

type EntryListResponse struct {
	UserId  string               `json:"user_id"`
	Entries []models.EntryRecord `json:"entries"`
	Limit   int                  `json:"limit"`
	Offset  int                  `json:"offset"`
}

type HealthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
