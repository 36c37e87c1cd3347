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

package audit

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"credit-ledger-go/internal/models"

	v3 "github.com/formancehq/formance-sdk-go/v3"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/sdkerrors"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"go.uber.org/zap"
)

// creditAsset is the Formance UMN asset for ledger credits (integer, no precision).
const creditAsset = "CREDIT"

// Numscript templates. Grants and refunds flow from @world into the user's
// credit account; usage and expiration flow out to a platform account.
const numscriptGrant = `vars {
  asset $asset
  number $amount
  account $user_id
  string $event_type
  string $entry_id
  string $entry_type
}

send [$asset $amount] (
  source = @world
  destination = @users:$user_id:credits
)

set_tx_meta("event_type", $event_type)
set_tx_meta("entry_id", $entry_id)
set_tx_meta("entry_type", $entry_type)
`

const numscriptDebit = `vars {
  asset $asset
  number $amount
  account $user_id
  account $destination
  string $event_type
  string $entry_id
  string $entry_type
}

send [$asset $amount] (
  source = @users:$user_id:credits allowing unbounded overdraft
  destination = $destination
)

set_tx_meta("event_type", $event_type)
set_tx_meta("entry_id", $entry_id)
set_tx_meta("entry_type", $entry_type)
`

// FormanceSink mirrors every committed mutation into a Formance ledger, so
// the audit trail lives in a second, independently durable system. The
// ledger entry id is the Formance reference, which makes redelivery safe.
type FormanceSink struct {
	client *v3.Formance
	ledger string
}

var _ Notifier = (*FormanceSink)(nil)

// NewFormanceSink connects to the stack and creates the mirror ledger if it
// doesn't already exist.
func NewFormanceSink(ctx context.Context, cfg models.FormanceConfig) (*FormanceSink, error) {
	if cfg.StackURL == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("formance config requires StackURL, ClientID, and ClientSecret")
	}
	if cfg.LedgerName == "" {
		cfg.LedgerName = "credit-ledger-audit"
	}

	zap.L().Info("Connecting to Formance Stack",
		zap.String("stack_url", cfg.StackURL),
		zap.String("ledger", cfg.LedgerName))

	client := v3.New(
		v3.WithServerURL(cfg.StackURL),
		v3.WithSecurity(shared.Security{
			ClientID:     v3.Pointer(cfg.ClientID),
			ClientSecret: v3.Pointer(cfg.ClientSecret),
		}),
	)

	sink := &FormanceSink{client: client, ledger: cfg.LedgerName}
	if err := sink.ensureLedger(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure ledger exists: %w", err)
	}

	zap.L().Info("Formance audit sink initialized", zap.String("ledger", cfg.LedgerName))
	return sink, nil
}

func (s *FormanceSink) ensureLedger(ctx context.Context) error {
	_, err := s.client.Ledger.V2.CreateLedger(ctx, operations.V2CreateLedgerRequest{
		Ledger: s.ledger,
		V2CreateLedgerRequest: shared.V2CreateLedgerRequest{
			Metadata: map[string]string{
				"application": "credit-ledger",
			},
		},
	})
	if err != nil {
		var apiErr *sdkerrors.V2ErrorResponse
		if errors.As(err, &apiErr) && apiErr.ErrorCode == shared.V2ErrorsEnumLedgerAlreadyExists {
			zap.L().Info("Ledger already exists", zap.String("ledger", s.ledger))
			return nil
		}
		return err
	}
	zap.L().Info("Ledger created", zap.String("ledger", s.ledger))
	return nil
}

func (s *FormanceSink) Notify(ctx context.Context, e Event) error {
	if e.Amount == 0 {
		return nil
	}

	script, vars := formanceScript(e)
	occurredAt := e.OccurredAt
	postTx := shared.V2PostTransaction{
		Reference: strPtr(e.EntryId),
		Script: &shared.V2PostTransactionScript{
			Plain: script,
			Vars:  vars,
		},
		Metadata: formanceMetadata(e),
	}
	if !occurredAt.IsZero() {
		postTx.Timestamp = &occurredAt
	}

	_, err := s.client.Ledger.V2.CreateTransaction(ctx, operations.V2CreateTransactionRequest{
		Ledger:            s.ledger,
		V2PostTransaction: postTx,
	})
	if err != nil {
		if isConflictError(err) {
			return nil // already mirrored
		}
		return fmt.Errorf("error mirroring %s entry %s: %w", e.Operation, e.EntryId, err)
	}

	zap.L().Debug("Audit event mirrored to Formance",
		zap.String("entry_id", e.EntryId),
		zap.String("user_id", e.UserId),
		zap.String("operation", string(e.Operation)))
	return nil
}

// formanceScript picks the Numscript template for an event and fills its vars.
func formanceScript(e Event) (string, map[string]string) {
	amount := e.Amount
	if amount < 0 {
		amount = -amount
	}
	vars := map[string]string{
		"asset":      creditAsset,
		"amount":     strconv.FormatInt(amount, 10),
		"user_id":    e.UserId,
		"event_type": string(e.Operation),
		"entry_id":   e.EntryId,
		"entry_type": e.EntryType.String(),
	}

	switch e.Operation {
	case OpConsume:
		vars["destination"] = "platform:usage"
		return numscriptDebit, vars
	case OpExpire:
		vars["destination"] = "platform:expired"
		return numscriptDebit, vars
	default:
		return numscriptGrant, vars
	}
}

func formanceMetadata(e Event) map[string]string {
	meta := make(map[string]string, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		meta[k] = v
	}
	meta["description"] = e.Description
	return meta
}

// isConflictError checks whether a Formance SDK error is a CONFLICT (duplicate reference).
func isConflictError(err error) bool {
	var apiErr *sdkerrors.V2ErrorResponse
	return errors.As(err, &apiErr) && apiErr.ErrorCode == shared.V2ErrorsEnumConflict
}

func strPtr(s string) *string { return &s }
