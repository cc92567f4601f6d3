package correlation

import (
	"time"

	"github.com/ocx/donationbox/internal/broadcast"
)

// CategoryChosenEnvelope builds the category_chosen broadcast payload.
func CategoryChosenEnvelope(categoryID int64, categoryName string, at time.Time) broadcast.Envelope {
	var name any
	if categoryName != "" {
		name = categoryName
	}
	return broadcast.Envelope{
		Type: "category_chosen",
		Data: map[string]any{
			"category_id":   categoryID,
			"category_name": name,
			"timestamp":     at,
		},
	}
}

// MoneyInsertedEnvelope builds the money_inserted broadcast payload.
func MoneyInsertedEnvelope(amountCents, totalAmountCents int64, at time.Time) broadcast.Envelope {
	return broadcast.Envelope{
		Type: "money_inserted",
		Data: map[string]any{
			"amount_cents":       amountCents,
			"total_amount_cents": totalAmountCents,
			"timestamp":          at,
		},
	}
}
