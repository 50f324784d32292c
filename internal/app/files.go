package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/fixr105/Seven-Render-sub002/internal/apperr"
	"github.com/fixr105/Seven-Render-sub002/internal/idmatch"
	"github.com/fixr105/Seven-Render-sub002/internal/ledger"
	"github.com/fixr105/Seven-Render-sub002/internal/rbac"
	"github.com/fixr105/Seven-Render-sub002/internal/records"
	"github.com/fixr105/Seven-Render-sub002/internal/workflow"
)

type StatusChange struct {
	FileID string `validate:"required"`
	To     string `validate:"required"`
	Note   string `validate:"max=2000"`
}

// ChangeStatus moves a visible loan file to a new status if the transition
// table allows it for the actor's role. Rejections are *workflow.TransitionError.
func (s *Service) ChangeStatus(ctx context.Context, actor rbac.Actor, input StatusChange) (records.Row, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, apperr.FromValidator(err)
	}
	to, ok := workflow.ParseStatus(input.To)
	if !ok {
		return nil, apperr.Validation(fmt.Sprintf("unknown status %q", input.To), map[string]string{"To": "status"})
	}
	file, err := s.visibleFile(ctx, actor, input.FileID)
	if err != nil {
		return nil, err
	}
	from, ok := workflow.ParseStatus(file.String(records.FieldStatus))
	if !ok {
		return nil, apperr.StateViolation("UNKNOWN_STATUS",
			fmt.Sprintf("file %s has an unrecognised status %q", input.FileID, file.String(records.FieldStatus)), nil)
	}
	if err := workflow.ValidateTransition(from, to, actor.Role); err != nil {
		return nil, err
	}

	return s.writeStatus(ctx, actor, file, from, to, input.Note)
}

func (s *Service) writeStatus(ctx context.Context, actor rbac.Actor, file records.Row, from, to workflow.Status, note string) (records.Row, error) {
	row := file.Clone()
	row[records.FieldStatus] = to.Label()
	saved, err := s.gateway.Upsert(ctx, records.TableLoanFiles, row)
	if err != nil {
		return nil, apperr.FromStore("write loan file", err)
	}

	message := fmt.Sprintf("%s -> %s", from.Label(), to.Label())
	if note = strings.TrimSpace(note); note != "" {
		message += ": " + note
	}
	s.audit(ctx, fileKey(saved), actor, "status_changed", message)
	return saved, nil
}

type Disbursement struct {
	FileID string `validate:"required"`
	Amount decimal.Decimal
	// Rate is a percentage; nil uses the client's configured rate.
	Rate *decimal.Decimal
}

// DisbursementResult is the file after the move and its commission entry.
type DisbursementResult struct {
	File       records.Row  `json:"file"`
	Commission ledger.Entry `json:"commission"`
}

// RecordDisbursement is the override path to disbursed. It records the
// commission first and reuses an existing commission entry for the file, so a
// retry after a failed status write does not book the commission twice.
func (s *Service) RecordDisbursement(ctx context.Context, actor rbac.Actor, input Disbursement) (DisbursementResult, error) {
	if !rbac.Can(actor.Role, rbac.ActionOverride) {
		return DisbursementResult{}, apperr.Forbidden("only credit or admin can record a disbursement")
	}
	if err := s.validate.Struct(input); err != nil {
		return DisbursementResult{}, apperr.FromValidator(err)
	}
	if !input.Amount.IsPositive() {
		return DisbursementResult{}, apperr.Validation("disbursed amount must be positive", map[string]string{"Amount": "gt"})
	}

	files, err := s.gateway.FetchTable(ctx, records.TableLoanFiles)
	if err != nil {
		return DisbursementResult{}, apperr.FromStore("load loan files", err)
	}
	file, ok := records.FindByKey(records.TableLoanFiles, files, input.FileID)
	if !ok {
		return DisbursementResult{}, apperr.NotFound(fmt.Sprintf("loan file %q not found", input.FileID))
	}
	from, _ := workflow.ParseStatus(file.String(records.FieldStatus))
	if from != workflow.StatusApproved {
		return DisbursementResult{}, apperr.StateViolation("NOT_APPROVED",
			fmt.Sprintf("only approved files can be disbursed, file is %s", from.Label()), nil)
	}
	clientID := fileClient(file)
	if clientID == "" {
		return DisbursementResult{}, apperr.StateViolation("NO_CLIENT", "loan file has no client", nil)
	}

	commission, found, err := s.existingCommission(ctx, file)
	if err != nil {
		return DisbursementResult{}, err
	}
	if !found {
		commission, err = s.ledger.RecordDisbursementCommission(ctx, ledger.DisbursementInput{
			LoanFileID:      fileKey(file),
			ClientID:        clientID,
			DisbursedAmount: input.Amount,
			Rate:            input.Rate,
			RecordedBy:      actor.Identity(),
		})
		if err != nil {
			return DisbursementResult{}, err
		}
	}

	saved, err := s.writeStatus(ctx, actor, file, from, workflow.StatusDisbursed,
		fmt.Sprintf("disbursed %s, commission %s", input.Amount.StringFixed(2), commission.Amount.StringFixed(2)))
	if err != nil {
		return DisbursementResult{}, err
	}
	return DisbursementResult{File: saved, Commission: commission}, nil
}

func (s *Service) existingCommission(ctx context.Context, file records.Row) (ledger.Entry, bool, error) {
	rows, err := s.gateway.FetchTable(ctx, records.TableLedger)
	if err != nil {
		return ledger.Entry{}, false, apperr.FromStore("load ledger", err)
	}
	id, biz := records.Keys(records.TableLoanFiles, file)
	for _, row := range rows {
		entry := ledger.EntryFromRow(row)
		if entry.DisbursedAmount.IsZero() {
			continue
		}
		if idmatch.Equal(entry.LoanFileID, id) || idmatch.Equal(entry.LoanFileID, biz) {
			return entry, true, nil
		}
	}
	return ledger.Entry{}, false, nil
}

// NextStatuses lists the moves actor may make on a visible file.
func (s *Service) NextStatuses(ctx context.Context, actor rbac.Actor, fileID string) ([]workflow.Status, error) {
	file, err := s.visibleFile(ctx, actor, fileID)
	if err != nil {
		return nil, err
	}
	from, ok := workflow.ParseStatus(file.String(records.FieldStatus))
	if !ok {
		return []workflow.Status{}, nil
	}
	return workflow.NextStatuses(from, actor.Role), nil
}
