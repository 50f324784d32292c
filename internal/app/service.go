// Package app composes the engines for one authenticated actor per call:
// every read goes through the visibility resolver and every accepted status
// move is paired with an audit row.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/fixr105/Seven-Render-sub002/internal/apperr"
	"github.com/fixr105/Seven-Render-sub002/internal/cache"
	"github.com/fixr105/Seven-Render-sub002/internal/config"
	"github.com/fixr105/Seven-Render-sub002/internal/idmatch"
	"github.com/fixr105/Seven-Render-sub002/internal/ledger"
	"github.com/fixr105/Seven-Render-sub002/internal/logging"
	"github.com/fixr105/Seven-Render-sub002/internal/notify"
	"github.com/fixr105/Seven-Render-sub002/internal/queries"
	"github.com/fixr105/Seven-Render-sub002/internal/rbac"
	"github.com/fixr105/Seven-Render-sub002/internal/records"
)

const moduleName = "app"

type Service struct {
	cfg      config.Config
	gateway  records.Gateway
	resolver *rbac.Resolver
	ledger   *ledger.Engine
	queries  *queries.Engine
	validate *validator.Validate
	now      func() time.Time
	dispatch func(func())
	logger   *logrus.Logger
}

type options struct {
	now      func() time.Time
	dispatch func(func())
}

type Option func(*options)

// WithClock replaces time.Now in every engine.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithDispatcher replaces the goroutine used for side effects in every engine.
func WithDispatcher(dispatch func(func())) Option {
	return func(o *options) { o.dispatch = dispatch }
}

// New wires the engines over gateway. Every gateway call gets the configured
// record store timeout. A nil setCache uses an in-process cache.
func New(cfg config.Config, gateway records.Gateway, setCache cache.SetCache, notifier notify.Notifier, logger *logrus.Logger, opts ...Option) *Service {
	o := options{now: time.Now, dispatch: func(fn func()) { go fn() }}
	for _, opt := range opts {
		opt(&o)
	}
	logger = logging.OrDiscard(logger)
	if cfg.RecordStoreTimeout > 0 {
		gateway = records.WithTimeout(gateway, cfg.RecordStoreTimeout)
	}

	resolver := rbac.NewResolver(gateway, setCache, cfg.ManagedClientsTTL, logger)
	queryEngine := queries.NewEngine(gateway, notifier, logger,
		queries.WithClock(o.now),
		queries.WithDispatcher(o.dispatch),
		queries.WithEditWindow(cfg.QueryEditWindow),
	)
	ledgerEngine := ledger.NewEngine(gateway, queryEngine, cfg.DefaultCommissionRate, logger,
		ledger.WithClock(o.now),
		ledger.WithDispatcher(o.dispatch),
		ledger.WithManagedClients(resolver),
	)

	return &Service{
		cfg:      cfg,
		gateway:  gateway,
		resolver: resolver,
		ledger:   ledgerEngine,
		queries:  queryEngine,
		validate: validator.New(),
		now:      o.now,
		dispatch: o.dispatch,
		logger:   logger,
	}
}

func (s *Service) Resolver() *rbac.Resolver { return s.resolver }
func (s *Service) Ledger() *ledger.Engine   { return s.ledger }
func (s *Service) Queries() *queries.Engine { return s.queries }

// list fetches table and narrows it to what actor may see.
func (s *Service) list(ctx context.Context, actor rbac.Actor, table string, kind rbac.TableKind) ([]records.Row, error) {
	if !rbac.Can(actor.Role, rbac.ActionRead) {
		return nil, apperr.Forbidden(fmt.Sprintf("role %q cannot read %s", actor.Role, table))
	}
	rows, err := s.gateway.FetchTable(ctx, table)
	if err != nil {
		return nil, apperr.FromStore(fmt.Sprintf("load %s", table), err)
	}
	return s.resolver.Scope(ctx, actor, kind, rows)
}

func (s *Service) ListLoanFiles(ctx context.Context, actor rbac.Actor) ([]records.Row, error) {
	return s.list(ctx, actor, records.TableLoanFiles, rbac.LoanFiles)
}

func (s *Service) ListLedger(ctx context.Context, actor rbac.Actor) ([]records.Row, error) {
	return s.list(ctx, actor, records.TableLedger, rbac.LedgerEntries)
}

func (s *Service) ListAuditLog(ctx context.Context, actor rbac.Actor) ([]records.Row, error) {
	return s.list(ctx, actor, records.TableAuditLog, rbac.AuditLogRows)
}

func (s *Service) ListClients(ctx context.Context, actor rbac.Actor) ([]records.Row, error) {
	return s.list(ctx, actor, records.TableClients, rbac.Clients)
}

// visibleFile returns the loan file fileID if actor can see it. A file the
// actor cannot see is reported as not found.
func (s *Service) visibleFile(ctx context.Context, actor rbac.Actor, fileID string) (records.Row, error) {
	files, err := s.ListLoanFiles(ctx, actor)
	if err != nil {
		return nil, err
	}
	file, ok := records.FindByKey(records.TableLoanFiles, files, fileID)
	if !ok {
		return nil, apperr.NotFound(fmt.Sprintf("loan file %q not found", fileID))
	}
	return file, nil
}

// visibleClient reports whether clientID is one of the clients actor sees.
func (s *Service) visibleClient(ctx context.Context, actor rbac.Actor, clientID string) error {
	if actor.Role == rbac.RoleCredit {
		return nil
	}
	clients, err := s.ListClients(ctx, actor)
	if err != nil {
		return err
	}
	for _, client := range clients {
		id, biz := records.Keys(records.TableClients, client)
		if idmatch.Equal(id, clientID) || idmatch.Equal(biz, clientID) {
			return nil
		}
	}
	return apperr.IdentityMismatch(fmt.Sprintf("client %q is outside the caller's scope", clientID))
}

func fileClient(file records.Row) string {
	return file.String(records.FieldClient, records.FieldClientID)
}

func fileKey(file records.Row) string {
	if _, biz := records.Keys(records.TableLoanFiles, file); biz != "" {
		return biz
	}
	return file.ID()
}

// audit appends a plain audit row in the background.
func (s *Service) audit(ctx context.Context, fileID string, actor rbac.Actor, eventType, message string) {
	detached := context.WithoutCancel(ctx)
	s.dispatch(func() {
		if err := s.queries.RecordEvent(detached, fileID, actor, eventType, message); err != nil {
			logging.LogError(s.logger, moduleName, "audit", "append audit row",
				map[string]any{"fileId": fileID, "eventType": eventType}, err)
		}
	})
}
