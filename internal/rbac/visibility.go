package rbac

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fixr105/Seven-Render-sub002/internal/apperr"
	"github.com/fixr105/Seven-Render-sub002/internal/cache"
	"github.com/fixr105/Seven-Render-sub002/internal/idmatch"
	"github.com/fixr105/Seven-Render-sub002/internal/logging"
	"github.com/fixr105/Seven-Render-sub002/internal/records"
)

const moduleName = "rbac"

// TableKind selects the ownership rule applied by Scope.
type TableKind string

const (
	LoanFiles     TableKind = "loan_files"
	LedgerEntries TableKind = "ledger_entries"
	AuditLogRows  TableKind = "audit_log_rows"
	Clients       TableKind = "clients"
)

// Owner fields per table. Loan files name their client under either label.
var (
	loanFileClientFields = []string{records.FieldClient, records.FieldClientID}
	ledgerClientFields   = []string{records.FieldClient, records.FieldClientID}
	auditFileFields      = []string{records.FieldFile, records.FieldFileID}
)

const DefaultManagedClientsTTL = 30 * time.Second

// Resolver computes which rows an actor may see.
type Resolver struct {
	gateway records.Gateway
	cache   cache.SetCache
	ttl     time.Duration
	logger  *logrus.Logger
}

func NewResolver(gateway records.Gateway, setCache cache.SetCache, ttl time.Duration, logger *logrus.Logger) *Resolver {
	if setCache == nil {
		setCache = cache.NewMemory()
	}
	if ttl <= 0 {
		ttl = DefaultManagedClientsTTL
	}
	return &Resolver{gateway: gateway, cache: setCache, ttl: ttl, logger: logging.OrDiscard(logger)}
}

// Scope filters rows of the given kind down to what actor may see. A missing
// scope id or an unknown role yields an empty result, never an error. Errors
// are returned only when a lookup the decision depends on fails.
func (r *Resolver) Scope(ctx context.Context, actor Actor, kind TableKind, rows []records.Row) ([]records.Row, error) {
	switch actor.Role {
	case RoleCredit:
		return rows, nil
	case RoleClient, RoleKAM, RoleNBFC:
	case RoleAdmin:
		// admin acts through the override path and reads no rows
		return []records.Row{}, nil
	default:
		logging.LogWarning(r.logger, moduleName, "Scope", "unknown role, returning no rows",
			map[string]any{"role": actor.Role, "kind": kind})
		return []records.Row{}, nil
	}

	if actor.ScopeID() == "" {
		logging.LogWarning(r.logger, moduleName, "Scope", "actor has no scope id, returning no rows",
			map[string]any{"role": actor.Role, "actorId": actor.ID, "kind": kind})
		return []records.Row{}, nil
	}

	switch kind {
	case LoanFiles:
		return r.scopeLoanFiles(ctx, actor, rows)
	case LedgerEntries:
		return r.scopeLedger(ctx, actor, rows)
	case AuditLogRows:
		return r.scopeAuditLog(ctx, actor, rows)
	case Clients:
		return r.scopeClients(ctx, actor, rows)
	default:
		return []records.Row{}, nil
	}
}

func (r *Resolver) scopeLoanFiles(ctx context.Context, actor Actor, rows []records.Row) ([]records.Row, error) {
	switch actor.Role {
	case RoleClient:
		return filter(rows, func(row records.Row) bool {
			return idmatch.Match(row.Get(loanFileClientFields...), actor.ClientID)
		}), nil
	case RoleNBFC:
		return filter(rows, func(row records.Row) bool {
			return idmatch.Match(row.Get(records.FieldAssignedNBFC), actor.NBFCID)
		}), nil
	case RoleKAM:
		managed, err := r.ManagedClients(ctx, actor.KAMID)
		if err != nil {
			return nil, err
		}
		return filter(rows, func(row records.Row) bool {
			return managed.Contains(row.Get(loanFileClientFields...))
		}), nil
	}
	return []records.Row{}, nil
}

func (r *Resolver) scopeLedger(ctx context.Context, actor Actor, rows []records.Row) ([]records.Row, error) {
	switch actor.Role {
	case RoleClient:
		return filter(rows, func(row records.Row) bool {
			return idmatch.Match(row.Get(ledgerClientFields...), actor.ClientID)
		}), nil
	case RoleKAM:
		managed, err := r.ManagedClients(ctx, actor.KAMID)
		if err != nil {
			return nil, err
		}
		return filter(rows, func(row records.Row) bool {
			return managed.Contains(row.Get(ledgerClientFields...))
		}), nil
	}
	// commission entries are between the company and its clients
	return []records.Row{}, nil
}

// scopeAuditLog goes through the loan files: audit rows carry no owner field
// of their own, only the file they belong to.
func (r *Resolver) scopeAuditLog(ctx context.Context, actor Actor, rows []records.Row) ([]records.Row, error) {
	fileIDs, err := r.visibleFileIDs(ctx, actor)
	if err != nil {
		return nil, err
	}
	return filter(rows, func(row records.Row) bool {
		return fileIDs.Contains(row.Get(auditFileFields...))
	}), nil
}

func (r *Resolver) scopeClients(ctx context.Context, actor Actor, rows []records.Row) ([]records.Row, error) {
	switch actor.Role {
	case RoleClient:
		return filter(rows, func(row records.Row) bool {
			id, biz := records.Keys(records.TableClients, row)
			return idmatch.MatchAny(actor.ClientID, id, biz)
		}), nil
	case RoleKAM:
		managed, err := r.ManagedClients(ctx, actor.KAMID)
		if err != nil {
			return nil, err
		}
		return filter(rows, func(row records.Row) bool {
			id, biz := records.Keys(records.TableClients, row)
			return managed.Contains(id) || managed.Contains(biz)
		}), nil
	case RoleNBFC:
		files, err := r.visibleFiles(ctx, actor)
		if err != nil {
			return nil, err
		}
		owners := NewIDSet()
		for _, file := range files {
			owners.Add(file.Get(loanFileClientFields...))
		}
		return filter(rows, func(row records.Row) bool {
			id, biz := records.Keys(records.TableClients, row)
			return owners.Contains(id) || owners.Contains(biz)
		}), nil
	}
	return []records.Row{}, nil
}

func (r *Resolver) visibleFiles(ctx context.Context, actor Actor) ([]records.Row, error) {
	files, err := r.fetch(ctx, records.TableLoanFiles)
	if err != nil {
		return nil, err
	}
	return r.scopeLoanFiles(ctx, actor, files)
}

func (r *Resolver) visibleFileIDs(ctx context.Context, actor Actor) (IDSet, error) {
	files, err := r.visibleFiles(ctx, actor)
	if err != nil {
		return nil, err
	}
	ids := NewIDSet()
	for _, file := range files {
		id, biz := records.Keys(records.TableLoanFiles, file)
		ids.Add(id)
		ids.Add(biz)
	}
	return ids, nil
}

// ManagedClients returns the ids (record id and Client ID) of every client
// whose Assigned KAM equals kamID or the KAM's alternate directory id. The
// result is cached per KAM for the resolver TTL. A store failure is returned:
// an unfiltered or empty set would be a wrong answer, not a degraded one.
func (r *Resolver) ManagedClients(ctx context.Context, kamID string) (IDSet, error) {
	if idmatch.Normalize(kamID) == "" {
		return NewIDSet(), nil
	}
	key := "kam-clients:" + idmatch.Normalize(kamID)

	cached, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		logging.LogError(r.logger, moduleName, "ManagedClients", "read managed client cache", map[string]any{"kamId": kamID}, err)
	} else if ok {
		return NewIDSet(cached...), nil
	}

	kamUsers, err := r.fetch(ctx, records.TableKAMUsers)
	if err != nil {
		return nil, err
	}
	clients, err := r.fetch(ctx, records.TableClients)
	if err != nil {
		return nil, err
	}

	aliases := []string{kamID}
	for _, kam := range kamUsers {
		id, biz := records.Keys(records.TableKAMUsers, kam)
		if idmatch.Equal(id, kamID) || idmatch.Equal(biz, kamID) {
			aliases = append(aliases, id, biz)
		}
	}

	managed := NewIDSet()
	for _, client := range clients {
		assigned := client.Get(records.FieldAssignedKAM)
		for _, alias := range aliases {
			if idmatch.Equal(assigned, alias) {
				id, biz := records.Keys(records.TableClients, client)
				managed.Add(id)
				managed.Add(biz)
				break
			}
		}
	}

	if err := r.cache.Set(ctx, key, managed.Values(), r.ttl); err != nil {
		logging.LogError(r.logger, moduleName, "ManagedClients", "write managed client cache", map[string]any{"kamId": kamID}, err)
	}
	return managed, nil
}

func (r *Resolver) fetch(ctx context.Context, table string) ([]records.Row, error) {
	rows, err := r.gateway.FetchTable(ctx, table)
	if err != nil {
		return nil, apperr.FromStore(fmt.Sprintf("fetch table %q failed", table), err)
	}
	return rows, nil
}

func filter(rows []records.Row, keep func(records.Row) bool) []records.Row {
	out := make([]records.Row, 0, len(rows))
	for _, row := range rows {
		if keep(row) {
			out = append(out, row)
		}
	}
	return out
}
