package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/fixr105/Seven-Render-sub002/internal/apperr"
	"github.com/fixr105/Seven-Render-sub002/internal/idmatch"
	"github.com/fixr105/Seven-Render-sub002/internal/logging"
	"github.com/fixr105/Seven-Render-sub002/internal/rbac"
	"github.com/fixr105/Seven-Render-sub002/internal/records"
	"github.com/fixr105/Seven-Render-sub002/internal/util"
)

const moduleName = "ledger"

// Auditor appends plain audit events. Ledger writes use it for their
// secondary audit rows.
type Auditor interface {
	RecordEvent(ctx context.Context, fileID string, actor rbac.Actor, eventType, message string) error
}

// ManagedClients resolves the clients a KAM manages.
type ManagedClients interface {
	ManagedClients(ctx context.Context, kamID string) (rbac.IDSet, error)
}

type Engine struct {
	gateway     records.Gateway
	auditor     Auditor
	managed     ManagedClients
	validate    *validator.Validate
	defaultRate decimal.Decimal
	now         func() time.Time
	dispatch    func(func())
	logger      *logrus.Logger
}

type Option func(*Engine)

// WithClock sets the clock used for entry dates.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithDispatcher sets how fire-and-forget side effects are run. The default
// starts a goroutine.
func WithDispatcher(dispatch func(func())) Option {
	return func(e *Engine) { e.dispatch = dispatch }
}

// WithManagedClients lets KAMs flag disputes on their clients' entries.
func WithManagedClients(managed ManagedClients) Option {
	return func(e *Engine) { e.managed = managed }
}

func NewEngine(gateway records.Gateway, auditor Auditor, defaultRate decimal.Decimal, logger *logrus.Logger, opts ...Option) *Engine {
	e := &Engine{
		gateway:     gateway,
		auditor:     auditor,
		validate:    validator.New(),
		defaultRate: defaultRate,
		now:         time.Now,
		dispatch:    func(fn func()) { go fn() },
		logger:      logging.OrDiscard(logger),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type DisbursementInput struct {
	LoanFileID      string `validate:"required"`
	ClientID        string `validate:"required"`
	DisbursedAmount decimal.Decimal
	// Rate is a percentage. Nil means the client's configured rate.
	Rate       *decimal.Decimal
	RecordedBy string
}

// RecordDisbursementCommission appends one commission entry worth
// disbursed * rate / 100. A negative result is a payin.
func (e *Engine) RecordDisbursementCommission(ctx context.Context, input DisbursementInput) (Entry, error) {
	if err := e.validate.Struct(input); err != nil {
		return Entry{}, apperr.FromValidator(err)
	}
	if input.DisbursedAmount.IsZero() {
		return Entry{}, apperr.Validation("disbursed amount must be non-zero", map[string]string{"DisbursedAmount": "required"})
	}

	rate := e.defaultRate
	if input.Rate != nil {
		rate = *input.Rate
	} else {
		configured, ok, err := e.clientRate(ctx, input.ClientID)
		if err != nil {
			return Entry{}, err
		}
		if ok {
			rate = configured
		}
	}

	amount := input.DisbursedAmount.Mul(rate).Div(decimal.NewFromInt(100)).Round(2)
	entry := Entry{
		ID:              util.NewID("led"),
		ClientID:        input.ClientID,
		LoanFileID:      input.LoanFileID,
		Date:            e.now(),
		Amount:          amount,
		Rate:            rate,
		HasRate:         true,
		DisbursedAmount: input.DisbursedAmount,
		DisputeStatus:   DisputeNone,
		PayoutState:     PayoutNone,
		Description: fmt.Sprintf("%s commission at %s%% on disbursement of %s",
			entryTypeFor(amount), rate.String(), input.DisbursedAmount.StringFixed(2)),
		RecordedBy: input.RecordedBy,
	}
	return e.save(ctx, entry)
}

// clientRate reads the commission rate from Client Settings, then from the
// client record.
func (e *Engine) clientRate(ctx context.Context, clientID string) (decimal.Decimal, bool, error) {
	for _, table := range []string{records.TableClientSettings, records.TableClients} {
		rows, err := e.gateway.FetchTable(ctx, table)
		if err != nil {
			return decimal.Zero, false, apperr.FromStore("load commission rate", err)
		}
		for _, row := range rows {
			id, biz := records.Keys(table, row)
			if !idmatch.Equal(biz, clientID) && !idmatch.Equal(id, clientID) && !idmatch.Equal(row.Get(records.FieldClient), clientID) {
				continue
			}
			if rate, ok := row.Decimal(records.FieldCommissionRate); ok {
				return rate, true, nil
			}
		}
	}
	return decimal.Zero, false, nil
}

type PayoutRequest struct {
	Amount *decimal.Decimal
	Full   bool
}

// RequestPayout records a zero-value marker asking for amount (or the whole
// balance when Full). The balance only drops when the request is approved.
func (e *Engine) RequestPayout(ctx context.Context, actor rbac.Actor, clientID string, req PayoutRequest) (Entry, error) {
	if !rbac.Can(actor.Role, rbac.ActionRequestPayout) {
		return Entry{}, apperr.Forbidden("only clients can request payouts")
	}
	if !idmatch.Equal(clientID, actor.ClientID) {
		return Entry{}, apperr.IdentityMismatch("client id does not match the requesting client")
	}

	balance, err := e.ClientBalance(ctx, clientID)
	if err != nil {
		return Entry{}, err
	}
	if !balance.CurrentBalance.IsPositive() {
		return Entry{}, apperr.StateViolation("NO_BALANCE", "no balance available for payout",
			map[string]string{"balance": balance.CurrentBalance.StringFixed(2)})
	}

	var amount decimal.Decimal
	switch {
	case req.Full:
		amount = balance.CurrentBalance
	case req.Amount != nil:
		amount = *req.Amount
	default:
		return Entry{}, apperr.Validation("amount is required unless full is set", map[string]string{"Amount": "required"})
	}
	if !amount.IsPositive() {
		return Entry{}, apperr.Validation("payout amount must be positive", map[string]string{"Amount": "gt"})
	}
	if amount.GreaterThan(balance.CurrentBalance) {
		return Entry{}, apperr.StateViolation("PAYOUT_EXCEEDS_BALANCE", "requested amount exceeds available balance",
			map[string]string{"requested": amount.StringFixed(2), "balance": balance.CurrentBalance.StringFixed(2)})
	}

	entry := Entry{
		ID:              util.NewID("led"),
		ClientID:        clientID,
		Date:            e.now(),
		Amount:          decimal.Zero,
		RequestedAmount: amount,
		DisputeStatus:   DisputeNone,
		PayoutState:     PayoutRequested,
		Description:     fmt.Sprintf("Payout request for %s", amount.StringFixed(2)),
		RecordedBy:      actor.Identity(),
	}
	return e.save(ctx, entry)
}

// PayoutDecision is the outcome of an approval: the request marker now Paid
// and the debit that realizes it.
type PayoutDecision struct {
	Request Entry `json:"request"`
	Debit   Entry `json:"debit"`
}

// ApprovePayout marks the request Paid and appends a -approvedAmount entry.
// The approved amount must fit both the request and the balance at approval
// time.
// The marker is written first: if the debit then fails the request cannot be
// approved a second time.
func (e *Engine) ApprovePayout(ctx context.Context, approver rbac.Actor, entryID string, approvedAmount decimal.Decimal) (PayoutDecision, error) {
	if !rbac.Can(approver.Role, rbac.ActionDecidePayout) {
		return PayoutDecision{}, apperr.Forbidden("only credit can approve payouts")
	}
	request, err := e.pendingRequest(ctx, entryID)
	if err != nil {
		return PayoutDecision{}, err
	}
	if !approvedAmount.IsPositive() {
		return PayoutDecision{}, apperr.Validation("approved amount must be positive", map[string]string{"ApprovedAmount": "gt"})
	}
	if request.RequestedAmount.IsPositive() && approvedAmount.GreaterThan(request.RequestedAmount) {
		return PayoutDecision{}, apperr.StateViolation("APPROVAL_EXCEEDS_REQUEST", "approved amount exceeds requested amount",
			map[string]string{"approved": approvedAmount.StringFixed(2), "requested": request.RequestedAmount.StringFixed(2)})
	}
	balance, err := e.ClientBalance(ctx, request.ClientID)
	if err != nil {
		return PayoutDecision{}, err
	}
	if approvedAmount.GreaterThan(balance.CurrentBalance) {
		return PayoutDecision{}, apperr.StateViolation("PAYOUT_EXCEEDS_BALANCE", "approved amount exceeds available balance",
			map[string]string{"approved": approvedAmount.StringFixed(2), "balance": balance.CurrentBalance.StringFixed(2)})
	}

	request.PayoutState = PayoutPaid
	request.Notes = appendNote(request.Notes, fmt.Sprintf("Approved %s by %s", approvedAmount.StringFixed(2), approver.Identity()))
	request, err = e.save(ctx, request)
	if err != nil {
		return PayoutDecision{}, err
	}

	debit, err := e.save(ctx, Entry{
		ID:            util.NewID("led"),
		ClientID:      request.ClientID,
		Date:          e.now(),
		Amount:        approvedAmount.Neg(),
		DisputeStatus: DisputeNone,
		PayoutState:   PayoutNone,
		RelatedEntry:  request.Key(),
		Description:   fmt.Sprintf("Payout of %s against request %s", approvedAmount.StringFixed(2), request.Key()),
		RecordedBy:    approver.Identity(),
	})
	if err != nil {
		logging.LogError(e.logger, moduleName, "ApprovePayout", "request marked paid but debit not written",
			map[string]any{"entryId": request.Key(), "amount": approvedAmount.String()}, err)
		return PayoutDecision{}, err
	}

	e.audit(ctx, request.LoanFileID, approver, "payout_approved",
		fmt.Sprintf("Payout %s approved for %s", request.Key(), approvedAmount.StringFixed(2)))
	return PayoutDecision{Request: request, Debit: debit}, nil
}

type RejectInput struct {
	Reason string `validate:"required,max=1000"`
}

// RejectPayout marks the request Rejected. No debit is written.
func (e *Engine) RejectPayout(ctx context.Context, approver rbac.Actor, entryID string, input RejectInput) (Entry, error) {
	if !rbac.Can(approver.Role, rbac.ActionDecidePayout) {
		return Entry{}, apperr.Forbidden("only credit can reject payouts")
	}
	if err := e.validate.Struct(input); err != nil {
		return Entry{}, apperr.FromValidator(err)
	}
	request, err := e.pendingRequest(ctx, entryID)
	if err != nil {
		return Entry{}, err
	}

	request.PayoutState = PayoutRejected
	request.Notes = appendNote(request.Notes, fmt.Sprintf("Rejected by %s: %s", approver.Identity(), input.Reason))
	saved, err := e.save(ctx, request)
	if err != nil {
		return Entry{}, err
	}
	e.audit(ctx, saved.LoanFileID, approver, "payout_rejected",
		fmt.Sprintf("Payout %s rejected: %s", saved.Key(), input.Reason))
	return saved, nil
}

func (e *Engine) pendingRequest(ctx context.Context, entryID string) (Entry, error) {
	entry, err := e.Find(ctx, entryID)
	if err != nil {
		return Entry{}, err
	}
	if entry.PayoutState != PayoutRequested {
		return Entry{}, apperr.StateViolation("PAYOUT_NOT_PENDING",
			fmt.Sprintf("ledger entry is %s, not a pending payout request", entry.PayoutState),
			map[string]string{"state": string(entry.PayoutState)})
	}
	return entry, nil
}

type DisputeFlag struct {
	Reason string `validate:"required,max=1000"`
}

// FlagDispute puts an entry under query. Clients may only flag their own
// entries and KAMs only their managed clients' entries.
func (e *Engine) FlagDispute(ctx context.Context, raisedBy rbac.Actor, entryID string, input DisputeFlag) (Entry, error) {
	if !rbac.Can(raisedBy.Role, rbac.ActionFlagDispute) {
		return Entry{}, apperr.Forbidden("role cannot flag disputes")
	}
	if err := e.validate.Struct(input); err != nil {
		return Entry{}, apperr.FromValidator(err)
	}
	entry, err := e.Find(ctx, entryID)
	if err != nil {
		return Entry{}, err
	}
	if err := e.checkOwnership(ctx, raisedBy, entry); err != nil {
		return Entry{}, err
	}
	if entry.DisputeStatus == DisputeUnderQuery {
		return Entry{}, apperr.StateViolation("ALREADY_DISPUTED", "ledger entry is already under query", nil)
	}

	entry.DisputeStatus = DisputeUnderQuery
	entry.Notes = appendNote(entry.Notes, fmt.Sprintf("Dispute raised by %s: %s", raisedBy.Identity(), input.Reason))
	saved, err := e.save(ctx, entry)
	if err != nil {
		return Entry{}, err
	}
	e.audit(ctx, saved.LoanFileID, raisedBy, "dispute_flagged",
		fmt.Sprintf("Ledger entry %s disputed: %s", saved.Key(), input.Reason))
	return saved, nil
}

func (e *Engine) checkOwnership(ctx context.Context, actor rbac.Actor, entry Entry) error {
	switch actor.Role {
	case rbac.RoleClient:
		if !idmatch.Equal(entry.ClientID, actor.ClientID) {
			return apperr.IdentityMismatch("ledger entry belongs to another client")
		}
	case rbac.RoleKAM:
		if e.managed == nil {
			return apperr.Forbidden("managed clients are not available")
		}
		managed, err := e.managed.ManagedClients(ctx, actor.KAMID)
		if err != nil {
			return err
		}
		if !managed.Contains(entry.ClientID) {
			return apperr.IdentityMismatch("ledger entry belongs to a client outside this KAM's portfolio")
		}
	}
	return nil
}

type DisputeResolution struct {
	Resolved bool
	// AdjustedAmount replaces the entry amount. Only valid with Resolved.
	AdjustedAmount *decimal.Decimal
	Notes          string `validate:"required,max=2000"`
}

// ResolveDispute closes (or annotates) a dispute. With an adjusted amount it
// takes the one path that rewrites an amount in place.
func (e *Engine) ResolveDispute(ctx context.Context, resolver rbac.Actor, entryID string, input DisputeResolution) (Entry, error) {
	if !rbac.Can(resolver.Role, rbac.ActionResolveDispute) {
		return Entry{}, apperr.Forbidden("only credit can resolve disputes")
	}
	if err := e.validate.Struct(input); err != nil {
		return Entry{}, apperr.FromValidator(err)
	}
	if input.AdjustedAmount != nil && !input.Resolved {
		return Entry{}, apperr.Validation("an adjusted amount requires resolving the dispute",
			map[string]string{"AdjustedAmount": "required_with_resolved"})
	}
	entry, err := e.Find(ctx, entryID)
	if err != nil {
		return Entry{}, err
	}
	if entry.DisputeStatus != DisputeUnderQuery {
		return Entry{}, apperr.StateViolation("NOT_DISPUTED",
			fmt.Sprintf("ledger entry dispute status is %s", entry.DisputeStatus),
			map[string]string{"disputeStatus": string(entry.DisputeStatus)})
	}

	if !input.Resolved {
		entry.Notes = appendNote(entry.Notes, fmt.Sprintf("Dispute note by %s: %s", resolver.Identity(), input.Notes))
		return e.save(ctx, entry)
	}

	entry.DisputeStatus = DisputeResolved
	if input.AdjustedAmount != nil {
		return e.adjustAmount(ctx, resolver, entry, *input.AdjustedAmount, input.Notes)
	}
	entry.Notes = appendNote(entry.Notes, fmt.Sprintf("Dispute resolved by %s: %s", resolver.Identity(), input.Notes))
	saved, err := e.save(ctx, entry)
	if err != nil {
		return Entry{}, err
	}
	e.audit(ctx, saved.LoanFileID, resolver, "dispute_resolved",
		fmt.Sprintf("Ledger entry %s dispute resolved: %s", saved.Key(), input.Notes))
	return saved, nil
}

// adjustAmount is the only writer that changes an existing amount. The row
// keeps the before/after in its notes and an audit row records the same.
func (e *Engine) adjustAmount(ctx context.Context, resolver rbac.Actor, entry Entry, adjusted decimal.Decimal, notes string) (Entry, error) {
	before := entry.Amount
	entry.Amount = adjusted.Round(2)
	entry.Notes = appendNote(entry.Notes, fmt.Sprintf("Dispute resolved by %s, amount adjusted from %s to %s: %s",
		resolver.Identity(), before.StringFixed(2), entry.Amount.StringFixed(2), notes))
	saved, err := e.save(ctx, entry)
	if err != nil {
		return Entry{}, err
	}
	e.audit(ctx, saved.LoanFileID, resolver, "ledger_amount_adjusted",
		fmt.Sprintf("Ledger entry %s amount adjusted from %s to %s: %s",
			saved.Key(), before.StringFixed(2), saved.Amount.StringFixed(2), notes))
	return saved, nil
}

// ClientBalance derives the balance from the current ledger.
func (e *Engine) ClientBalance(ctx context.Context, clientID string) (Balance, error) {
	if idmatch.Normalize(clientID) == "" {
		return Balance{}, apperr.Validation("client id is required", map[string]string{"ClientID": "required"})
	}
	rows, err := e.gateway.FetchTable(ctx, records.TableLedger)
	if err != nil {
		return Balance{}, apperr.FromStore("load ledger", err)
	}
	return Summarize(clientID, rows), nil
}

// Entries returns every entry of clientID.
func (e *Engine) Entries(ctx context.Context, clientID string) ([]Entry, error) {
	rows, err := e.gateway.FetchTable(ctx, records.TableLedger)
	if err != nil {
		return nil, apperr.FromStore("load ledger", err)
	}
	return entriesFor(clientID, rows), nil
}

// Find looks an entry up by record id or Ledger Entry ID.
func (e *Engine) Find(ctx context.Context, entryID string) (Entry, error) {
	rows, err := e.gateway.FetchTable(ctx, records.TableLedger)
	if err != nil {
		return Entry{}, apperr.FromStore("load ledger", err)
	}
	row, ok := records.FindByKey(records.TableLedger, rows, entryID)
	if !ok {
		return Entry{}, apperr.NotFound(fmt.Sprintf("ledger entry %q not found", entryID))
	}
	return EntryFromRow(row), nil
}

func (e *Engine) save(ctx context.Context, entry Entry) (Entry, error) {
	stored, err := e.gateway.Upsert(ctx, records.TableLedger, entry.Row())
	if err != nil {
		return Entry{}, apperr.FromStore("write ledger entry", err)
	}
	return EntryFromRow(stored), nil
}

func (e *Engine) audit(ctx context.Context, fileID string, actor rbac.Actor, eventType, message string) {
	if e.auditor == nil {
		return
	}
	detached := context.WithoutCancel(ctx)
	e.dispatch(func() {
		if err := e.auditor.RecordEvent(detached, fileID, actor, eventType, message); err != nil {
			logging.LogError(e.logger, moduleName, "audit", "append ledger audit row",
				map[string]any{"fileId": fileID, "eventType": eventType}, err)
		}
	})
}
