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

// EntryType identifies the cause of a ledger entry. The set is closed:
// anything not listed in entryTypes is rejected by Valid.
type EntryType string

const (
	EntryRegisterGift        EntryType = "REGISTER_GIFT"
	EntryMonthlyRefresh      EntryType = "MONTHLY_REFRESH"
	EntrySubscriptionRenewal EntryType = "SUBSCRIPTION_RENEWAL"
	EntryLifetimeMonthly     EntryType = "LIFETIME_MONTHLY"
	EntryPurchasePackage     EntryType = "PURCHASE_PACKAGE"
	EntryDailySignin         EntryType = "DAILY_SIGNIN"
	EntryReferralReward      EntryType = "REFERRAL_REWARD"
	EntryShareReward         EntryType = "SHARE_REWARD"
	EntryTaskReward          EntryType = "TASK_REWARD"
	EntryManualAdjustment    EntryType = "MANUAL_ADJUSTMENT"
	EntryRefund              EntryType = "REFUND"
	EntryUsage               EntryType = "USAGE"
	EntryExpire              EntryType = "EXPIRE"
)

var entryTypes = map[EntryType]struct{}{
	EntryRegisterGift:        {},
	EntryMonthlyRefresh:      {},
	EntrySubscriptionRenewal: {},
	EntryLifetimeMonthly:     {},
	EntryPurchasePackage:     {},
	EntryDailySignin:         {},
	EntryReferralReward:      {},
	EntryShareReward:         {},
	EntryTaskReward:          {},
	EntryManualAdjustment:    {},
	EntryRefund:              {},
	EntryUsage:               {},
	EntryExpire:              {},
}

// RefundMarker is the suffix a refund's description carries when it returns
// a specific transaction.
func RefundMarker(originalId string) string {
	return "[original:" + originalId + "]"
}

// Valid reports whether t is one of the known entry types.
func (t EntryType) Valid() bool {
	_, ok := entryTypes[t]
	return ok
}

// IsEarn reports whether entries of this type carry a consumable remainder.
func (t EntryType) IsEarn() bool {
	return t.Valid() && t != EntryUsage && t != EntryExpire
}

func (t EntryType) String() string { return string(t) }

// ParseEntryType converts user input (case-sensitive) into an EntryType.
func ParseEntryType(s string) (EntryType, bool) {
	t := EntryType(s)
	return t, t.Valid()
}

// EntryTypes returns every known type, grants first.
func EntryTypes() []EntryType {
	return []EntryType{
		EntryRegisterGift, EntryMonthlyRefresh, EntrySubscriptionRenewal,
		EntryLifetimeMonthly, EntryPurchasePackage, EntryDailySignin,
		EntryReferralReward, EntryShareReward, EntryTaskReward,
		EntryManualAdjustment, EntryRefund, EntryUsage, EntryExpire,
	}
}

// Balance is the cached spendable total for one user (hot data)
type Balance struct {
	UserId         string    `db:"user_id"`
	CurrentCredits int64     `db:"current_credits"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// Entry is one immutable ledger record (cold data). Only RemainingAmount,
// ExpirationProcessedAt and UpdatedAt ever change after insert.
type Entry struct {
	Seq                   int64      `db:"seq"`
	Id                    string     `db:"id"`
	UserId                string     `db:"user_id"`
	Type                  EntryType  `db:"type"`
	Amount                int64      `db:"amount"`
	RemainingAmount       *int64     `db:"remaining_amount"`
	Description           string     `db:"description"`
	PaymentId             string     `db:"payment_id"`
	ExpirationDate        *time.Time `db:"expiration_date"`
	ExpirationProcessedAt *time.Time `db:"expiration_processed_at"`
	CreatedAt             time.Time  `db:"created_at"`
	UpdatedAt             time.Time  `db:"updated_at"`
}

// Remaining returns the consumable remainder, 0 for log-only entries.
func (e *Entry) Remaining() int64 {
	if e.RemainingAmount == nil {
		return 0
	}
	return *e.RemainingAmount
}

// IsExpiredAt reports whether the entry has an expiration date strictly before t.
func (e *Entry) IsExpiredAt(t time.Time) bool {
	return e.ExpirationDate != nil && e.ExpirationDate.Before(t)
}

// EntryFilter narrows history queries.
type EntryFilter struct {
	Types  []EntryType
	Since  time.Time
	Limit  int
	Offset int
}
