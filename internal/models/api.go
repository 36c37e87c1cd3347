/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package models

import "time"

// AddCreditsParams contains the parameters for granting credits
type AddCreditsParams struct {
	UserId      string
	Amount      int64
	Type        EntryType
	Description string
	PaymentId   string
	ExpireDays  *int // nil or 0 means the grant never expires
}

// RefundParams contains the parameters for refunding credits
type RefundParams struct {
	UserId                string
	Amount                int64
	Reason                string
	OriginalTransactionId string
	Metadata              map[string]string
}

// SweepResult summarizes one expiration sweep for a user
type SweepResult struct {
	UserId           string `json:"user_id"`
	ExpiredCredits   int64  `json:"expired_credits"`
	EntriesProcessed int    `json:"entries_processed"`
	ExpireEntryId    string `json:"expire_entry_id,omitempty"`
}

// Reconciliation compares the cached balance with the outstanding remainders
type Reconciliation struct {
	UserId         string `json:"user_id"`
	CachedBalance  int64  `json:"cached_balance"`
	OutstandingSum int64  `json:"outstanding_sum"`
	Difference     int64  `json:"difference"`
	Consistent     bool   `json:"consistent"`
}

// UserBalance is the balance payload returned to API callers
type UserBalance struct {
	UserId  string `json:"user_id"`
	Credits int64  `json:"credits"`
}

// EntryRecord represents a ledger entry in the user's history
type EntryRecord struct {
	Id                    string     `json:"id"`
	Type                  EntryType  `json:"type"`
	Amount                int64      `json:"amount"`
	RemainingAmount       *int64     `json:"remaining_amount,omitempty"`
	Description           string     `json:"description"`
	PaymentId             string     `json:"payment_id,omitempty"`
	ExpirationDate        *time.Time `json:"expiration_date,omitempty"`
	ExpirationProcessedAt *time.Time `json:"expiration_processed_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
}

// NewEntryRecord converts a stored entry into its API shape
func NewEntryRecord(e Entry) EntryRecord {
	return EntryRecord{
		Id:                    e.Id,
		Type:                  e.Type,
		Amount:                e.Amount,
		RemainingAmount:       e.RemainingAmount,
		Description:           e.Description,
		PaymentId:             e.PaymentId,
		ExpirationDate:        e.ExpirationDate,
		ExpirationProcessedAt: e.ExpirationProcessedAt,
		CreatedAt:             e.CreatedAt,
	}
}
