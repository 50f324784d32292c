package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/fixr105/Seven-Render-sub002/internal/idmatch"
	"github.com/fixr105/Seven-Render-sub002/internal/records"
)

// Balance is derived from the entries on every read. No aggregate is stored.
type Balance struct {
	ClientID                  string          `json:"clientId"`
	CurrentBalance            decimal.Decimal `json:"currentBalance"`
	TotalPayouts              decimal.Decimal `json:"totalPayouts"`
	TotalPayins               decimal.Decimal `json:"totalPayins"`
	TotalWithdrawn            decimal.Decimal `json:"totalWithdrawn"`
	PendingPayoutRequestCount int             `json:"pendingPayoutRequestCount"`
	DisputedEntryCount        int             `json:"disputedEntryCount"`
}

// Summarize folds every entry of clientID into a Balance. Entries whose
// payout request was rejected do not count. TotalPayins holds negative
// commission accruals only; approved payout debits go to TotalWithdrawn.
func Summarize(clientID string, rows []records.Row) Balance {
	balance := Balance{
		ClientID:       clientID,
		CurrentBalance: decimal.Zero,
		TotalPayouts:   decimal.Zero,
		TotalPayins:    decimal.Zero,
		TotalWithdrawn: decimal.Zero,
	}
	for _, entry := range entriesFor(clientID, rows) {
		if entry.DisputeStatus == DisputeUnderQuery {
			balance.DisputedEntryCount++
		}
		if entry.PayoutState == PayoutRequested {
			balance.PendingPayoutRequestCount++
		}
		if entry.PayoutState == PayoutRejected {
			continue
		}
		balance.CurrentBalance = balance.CurrentBalance.Add(entry.Amount)
		switch {
		case entry.Amount.IsPositive():
			balance.TotalPayouts = balance.TotalPayouts.Add(entry.Amount)
		case entry.RelatedEntry != "":
			balance.TotalWithdrawn = balance.TotalWithdrawn.Add(entry.Amount.Abs())
		default:
			balance.TotalPayins = balance.TotalPayins.Add(entry.Amount.Abs())
		}
	}
	return balance
}

func entriesFor(clientID string, rows []records.Row) []Entry {
	entries := make([]Entry, 0)
	for _, row := range rows {
		if ownedBy(row, clientID) {
			entries = append(entries, EntryFromRow(row))
		}
	}
	return entries
}

// ownedBy matches client ids exactly: CL1 does not own CL10's entries.
func ownedBy(row records.Row, clientID string) bool {
	return idmatch.Equal(row.Get(FieldClient, records.FieldClientID), clientID)
}
