package app

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/fixr105/Seven-Render-sub002/internal/ledger"
	"github.com/fixr105/Seven-Render-sub002/internal/queries"
	"github.com/fixr105/Seven-Render-sub002/internal/rbac"
)

// Query operations check that the file is visible to the actor before the
// query engine sees the call.

func (s *Service) GetQueriesForFile(ctx context.Context, actor rbac.Actor, fileID string) ([]queries.Thread, error) {
	file, err := s.visibleFile(ctx, actor, fileID)
	if err != nil {
		return nil, err
	}
	return s.queries.GetQueriesForFile(ctx, fileKey(file))
}

func (s *Service) CreateQuery(ctx context.Context, actor rbac.Actor, fileID, message string, target rbac.Role) (queries.Event, error) {
	file, err := s.visibleFile(ctx, actor, fileID)
	if err != nil {
		return queries.Event{}, err
	}
	return s.queries.CreateQuery(ctx, queries.NewQuery{
		FileID:     fileKey(file),
		ClientID:   fileClient(file),
		Actor:      actor,
		Message:    message,
		TargetRole: target,
	})
}

func (s *Service) ReplyToQuery(ctx context.Context, actor rbac.Actor, fileID, parentQueryID, message string, target rbac.Role) (queries.Event, error) {
	file, err := s.visibleFile(ctx, actor, fileID)
	if err != nil {
		return queries.Event{}, err
	}
	return s.queries.CreateQueryReply(ctx, queries.NewReply{
		ParentQueryID: parentQueryID,
		FileID:        fileKey(file),
		ClientID:      fileClient(file),
		Actor:         actor,
		Message:       message,
		TargetRole:    target,
	})
}

func (s *Service) EditQuery(ctx context.Context, actor rbac.Actor, fileID, queryID, message string) (queries.Event, error) {
	file, err := s.visibleFile(ctx, actor, fileID)
	if err != nil {
		return queries.Event{}, err
	}
	return s.queries.UpdateQuery(ctx, queries.QueryEdit{
		QueryID:     queryID,
		FileID:      fileKey(file),
		EditorEmail: actor.Identity(),
		NewMessage:  message,
	})
}

func (s *Service) ResolveQuery(ctx context.Context, actor rbac.Actor, fileID, queryID string) (queries.Event, error) {
	file, err := s.visibleFile(ctx, actor, fileID)
	if err != nil {
		return queries.Event{}, err
	}
	return s.queries.ResolveQuery(ctx, queryID, fileKey(file), actor)
}

// Ledger reads are limited to clients the actor can see.

func (s *Service) ClientBalance(ctx context.Context, actor rbac.Actor, clientID string) (ledger.Balance, error) {
	if err := s.visibleClient(ctx, actor, clientID); err != nil {
		return ledger.Balance{}, err
	}
	return s.ledger.ClientBalance(ctx, clientID)
}

func (s *Service) LedgerEntries(ctx context.Context, actor rbac.Actor, clientID string) ([]ledger.Entry, error) {
	if err := s.visibleClient(ctx, actor, clientID); err != nil {
		return nil, err
	}
	return s.ledger.Entries(ctx, clientID)
}

func (s *Service) RequestPayout(ctx context.Context, actor rbac.Actor, clientID string, req ledger.PayoutRequest) (ledger.Entry, error) {
	return s.ledger.RequestPayout(ctx, actor, clientID, req)
}

func (s *Service) ApprovePayout(ctx context.Context, actor rbac.Actor, entryID string, amount decimal.Decimal) (ledger.PayoutDecision, error) {
	return s.ledger.ApprovePayout(ctx, actor, entryID, amount)
}

func (s *Service) RejectPayout(ctx context.Context, actor rbac.Actor, entryID, reason string) (ledger.Entry, error) {
	return s.ledger.RejectPayout(ctx, actor, entryID, ledger.RejectInput{Reason: reason})
}

func (s *Service) FlagDispute(ctx context.Context, actor rbac.Actor, entryID, reason string) (ledger.Entry, error) {
	return s.ledger.FlagDispute(ctx, actor, entryID, ledger.DisputeFlag{Reason: reason})
}

func (s *Service) ResolveDispute(ctx context.Context, actor rbac.Actor, entryID string, resolution ledger.DisputeResolution) (ledger.Entry, error) {
	return s.ledger.ResolveDispute(ctx, actor, entryID, resolution)
}
