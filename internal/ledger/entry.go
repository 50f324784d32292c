// Package ledger keeps the per-client commission ledger: signed entries that
// are appended, never rewritten, plus the payout and dispute workflows that
// ride on them.
package ledger

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fixr105/Seven-Render-sub002/internal/records"
)

// Commission Ledger field labels.
const (
	FieldEntryID         = "Ledger Entry ID"
	FieldClient          = records.FieldClient
	FieldLoanFile        = "Loan File"
	FieldDate            = "Date"
	FieldAmount          = "Payout Amount"
	FieldRate            = records.FieldCommissionRate
	FieldDisbursedAmount = "Disbursed Amount"
	FieldEntryType       = "Entry Type"
	FieldDisputeStatus   = "Dispute Status"
	FieldPayoutRequest   = "Payout Request"
	FieldRequestedAmount = "Requested Amount"
	FieldRelatedEntry    = "Related Entry"
	FieldDescription     = "Description"
	FieldNotes           = "Notes"
	FieldRecordedBy      = "Recorded By"
)

type DisputeStatus string

const (
	DisputeNone       DisputeStatus = "None"
	DisputeUnderQuery DisputeStatus = "Under Query"
	DisputeResolved   DisputeStatus = "Resolved"
)

func parseDisputeStatus(value string) DisputeStatus {
	switch compact(value) {
	case "underquery", "disputed", "open":
		return DisputeUnderQuery
	case "resolved", "closed":
		return DisputeResolved
	default:
		return DisputeNone
	}
}

type PayoutState string

const (
	PayoutNone      PayoutState = "None"
	PayoutRequested PayoutState = "Requested"
	PayoutApproved  PayoutState = "Approved"
	PayoutPaid      PayoutState = "Paid"
	PayoutRejected  PayoutState = "Rejected"
)

func parsePayoutState(value string) PayoutState {
	switch compact(value) {
	case "requested", "pending":
		return PayoutRequested
	case "approved":
		return PayoutApproved
	case "paid":
		return PayoutPaid
	case "rejected":
		return PayoutRejected
	default:
		return PayoutNone
	}
}

func compact(value string) string {
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(strings.ToLower(strings.TrimSpace(value)))
}

// EntryType is derived from the sign of the amount.
type EntryType string

const (
	EntryPayout EntryType = "Payout"
	EntryPayin  EntryType = "Payin"
)

func entryTypeFor(amount decimal.Decimal) EntryType {
	if amount.IsNegative() {
		return EntryPayin
	}
	return EntryPayout
}

// Entry is the typed view of one Commission Ledger row.
type Entry struct {
	RecordID        string          `json:"recordId"`
	ID              string          `json:"id"`
	ClientID        string          `json:"clientId"`
	LoanFileID      string          `json:"loanFileId,omitempty"`
	Date            time.Time       `json:"date"`
	Amount          decimal.Decimal `json:"amount"`
	Rate            decimal.Decimal `json:"rate,omitempty"`
	HasRate         bool            `json:"-"`
	DisbursedAmount decimal.Decimal `json:"disbursedAmount,omitempty"`
	RequestedAmount decimal.Decimal `json:"requestedAmount,omitempty"`
	DisputeStatus   DisputeStatus   `json:"disputeStatus"`
	PayoutState     PayoutState     `json:"payoutRequestState"`
	RelatedEntry    string          `json:"relatedEntry,omitempty"`
	Description     string          `json:"description,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	RecordedBy      string          `json:"recordedBy,omitempty"`

	row records.Row
}

// EntryFromRow parses a ledger row. Unparseable amounts read as zero.
func EntryFromRow(row records.Row) Entry {
	id, biz := records.Keys(records.TableLedger, row)
	entry := Entry{
		RecordID:      id,
		ID:            biz,
		ClientID:      row.String(FieldClient, records.FieldClientID),
		LoanFileID:    row.String(FieldLoanFile, records.FieldFileID),
		DisputeStatus: parseDisputeStatus(row.String(FieldDisputeStatus)),
		PayoutState:   parsePayoutState(row.String(FieldPayoutRequest)),
		RelatedEntry:  row.String(FieldRelatedEntry),
		Description:   row.String(FieldDescription),
		Notes:         row.String(FieldNotes),
		RecordedBy:    row.String(FieldRecordedBy),
		row:           row,
	}
	if entry.ID == "" {
		entry.ID = id
	}
	entry.Date, _ = row.Time(FieldDate)
	entry.Amount, _ = row.Decimal(FieldAmount)
	entry.Rate, entry.HasRate = row.Decimal(FieldRate)
	entry.DisbursedAmount, _ = row.Decimal(FieldDisbursedAmount)
	entry.RequestedAmount, _ = row.Decimal(FieldRequestedAmount)
	return entry
}

// Row renders the entry as a full row for upsert. Fields the engine does not
// model are carried over from the row it was read from.
func (e Entry) Row() records.Row {
	row := records.Row{}
	if e.row != nil {
		row = e.row.Clone()
	}
	if e.RecordID != "" {
		row[records.FieldID] = e.RecordID
	}
	row[FieldEntryID] = e.ID
	row[FieldClient] = e.ClientID
	row[FieldAmount] = e.Amount.StringFixed(2)
	row[FieldEntryType] = string(entryTypeFor(e.Amount))
	row[FieldDisputeStatus] = string(e.DisputeStatus)
	row[FieldPayoutRequest] = string(e.PayoutState)
	if !e.Date.IsZero() {
		row[FieldDate] = e.Date.UTC().Format(time.RFC3339)
	}
	setIf(row, FieldLoanFile, e.LoanFileID)
	setIf(row, FieldRelatedEntry, e.RelatedEntry)
	setIf(row, FieldDescription, e.Description)
	setIf(row, FieldNotes, e.Notes)
	setIf(row, FieldRecordedBy, e.RecordedBy)
	if e.HasRate {
		row[FieldRate] = e.Rate.String()
	}
	if !e.DisbursedAmount.IsZero() {
		row[FieldDisbursedAmount] = e.DisbursedAmount.StringFixed(2)
	}
	if !e.RequestedAmount.IsZero() {
		row[FieldRequestedAmount] = e.RequestedAmount.StringFixed(2)
	}
	return row
}

func setIf(row records.Row, field, value string) {
	if value != "" {
		row[field] = value
	}
}

// Key is the id callers use to address the entry.
func (e Entry) Key() string {
	if e.ID != "" {
		return e.ID
	}
	return e.RecordID
}

func appendNote(existing, note string) string {
	if existing == "" {
		return note
	}
	return existing + "\n" + note
}
