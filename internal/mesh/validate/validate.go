// Package validate implements the message validator from design note §4.5:
// rejects inbound price updates that are structurally or semantically
// invalid, logging every rejection with the violated rule.
//
// Grounded on original_source's price_update_validator.rs, which applies
// the same field-by-field checks.
package validate

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/arcsign/meshcore/internal/mesh/meshtypes"
)

// Validator checks inbound price updates against design note §4.5's rules.
type Validator struct {
	log *zap.Logger
}

// New constructs a Validator.
func New(log *zap.Logger) *Validator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Validator{log: log}
}

// Validate returns nil if update passes every rule in design note §4.5, or a
// wrapped meshtypes.ErrInvalidUpdate otherwise. Every rejection is
// logged at error level with source_node_id, message_id, and the
// violated rule.
func (v *Validator) Validate(update meshtypes.PriceUpdate) error {
	if update.SourceNodeID.Nil() {
		return v.reject(update, "source_node_id is nil")
	}

	if update.IssuedAt.After(time.Now()) {
		return v.reject(update, "issued_at is in the future")
	}

	if len(update.Quotes) == 0 {
		return v.reject(update, "quotes is empty")
	}

	for asset, quote := range update.Quotes {
		if quote.AssetSymbol == "" {
			return v.reject(update, fmt.Sprintf("quote %q: asset symbol is empty", asset))
		}
		if quote.Blockchain == "" {
			return v.reject(update, fmt.Sprintf("quote %q: blockchain tag is empty", asset))
		}

		price, err := strconv.ParseFloat(quote.Price, 64)
		if err != nil || math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
			return v.reject(update, fmt.Sprintf("quote %q: price %q is not a finite strictly-positive number", asset, quote.Price))
		}

		if quote.Change24h != nil && *quote.Change24h != "" {
			change, err := strconv.ParseFloat(*quote.Change24h, 64)
			if err != nil || math.IsNaN(change) || math.IsInf(change, 0) {
				return v.reject(update, fmt.Sprintf("quote %q: change_24h %q is not finite", asset, *quote.Change24h))
			}
		}
	}

	return nil
}

func (v *Validator) reject(update meshtypes.PriceUpdate, rule string) error {
	v.log.Error("rejected inbound price update",
		zap.String("source_node_id", update.SourceNodeID.String()),
		zap.String("message_id", update.MessageID.String()),
		zap.String("violated_rule", rule),
	)
	return fmt.Errorf("%w: %s", meshtypes.ErrInvalidUpdate, rule)
}
