package rbac

import (
	"context"
	"errors"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixr105/Seven-Render-sub002/internal/apperr"
	"github.com/fixr105/Seven-Render-sub002/internal/cache"
	"github.com/fixr105/Seven-Render-sub002/internal/records"
)

type fixture struct {
	store *records.Memory
	now   time.Time
	cache *cache.Memory
}

func newFixture() *fixture {
	f := &fixture{store: records.NewMemory(), now: time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)}
	f.cache = cache.NewMemory().WithClock(func() time.Time { return f.now })

	f.store.Seed(records.TableKAMUsers,
		map[string]any{"id": "recKAM1", "fields": map[string]any{"KAM ID": "K1", "Email": "k1@example.com"}},
		map[string]any{"id": "recKAM2", "fields": map[string]any{"KAM ID": "KAM-77", "Email": "k77@example.com"}},
	)
	f.store.Seed(records.TableClients,
		map[string]any{"id": "recCL001", "Client ID": "CL001", "Assigned KAM": "K1"},
		map[string]any{"id": "recCL002", "Client ID": "CL002", "Assigned KAM": []any{"recKAM1"}},
		map[string]any{"id": "recCL003", "Client ID": "CL003", "Assigned KAM": "KAM-77"},
		map[string]any{"id": "recCL004", "Client ID": "CL004", "Assigned KAM": "K12"},
	)
	f.store.Seed(records.TableLoanFiles,
		map[string]any{"id": "recF1", "File ID": "F1", "Client": "CL001", "Assigned NBFC": "N1"},
		map[string]any{"id": "recF2", "File ID": "F2", "Client": []any{"recCL002"}},
		map[string]any{"id": "recF3", "File ID": "F3", "Client": "CL003", "Assigned NBFC": "N2"},
		map[string]any{"id": "recF4", "File ID": "F4", "Client": "CL004"},
	)
	f.store.Seed(records.TableLedger,
		map[string]any{"id": "L1", "Client": "CL001", "Payout Amount": 7500},
		map[string]any{"id": "L2", "Client": "CL003", "Payout Amount": 100},
	)
	f.store.Seed(records.TableAuditLog,
		map[string]any{"id": "A1", "File": "F1", "Action/Event Type": "query_raised"},
		map[string]any{"id": "A2", "File": "recF3", "Action/Event Type": "status_changed"},
		map[string]any{"id": "A3", "File": "F2", "Action/Event Type": "query_raised"},
	)
	return f
}

func (f *fixture) resolver() *Resolver {
	return NewResolver(f.store, f.cache, 30*time.Second, nil)
}

func (f *fixture) rows(t *testing.T, table string) []records.Row {
	t.Helper()
	rows, err := f.store.FetchTable(context.Background(), table)
	require.NoError(t, err)
	return rows
}

func ids(rows []records.Row) []string {
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.ID())
	}
	return out
}

func TestKAMSeesOnlyManagedClientsFiles(t *testing.T) {
	// GIVEN K1 manages CL001 by primary id and CL002 by directory record id
	f := newFixture()
	r := f.resolver()
	kam := Actor{ID: "u-k1", Role: RoleKAM, KAMID: "K1"}

	// WHEN scoping loan files
	got, err := r.Scope(context.Background(), kam, LoanFiles, f.rows(t, records.TableLoanFiles))

	// THEN only CL001 and CL002 files are visible; CL003 (KAM-77) and CL004 (K12) are not
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"recF1", "recF2"}, ids(got))
}

func TestManagedClientsIncludesBothKeys(t *testing.T) {
	f := newFixture()
	managed, err := f.resolver().ManagedClients(context.Background(), "K1")
	require.NoError(t, err)
	assert.Equal(t, []string{"cl001", "cl002", "reccl001", "reccl002"}, managed.Values())
}

func TestManagedClientsCachedUntilTTL(t *testing.T) {
	f := newFixture()
	r := f.resolver()
	ctx := context.Background()

	_, err := r.ManagedClients(ctx, "K1")
	require.NoError(t, err)
	_, err = r.ManagedClients(ctx, "K1")
	require.NoError(t, err)
	assert.Equal(t, 1, f.store.FetchCount(records.TableClients))

	// new assignment is invisible until the entry expires
	f.store.Seed(records.TableClients, map[string]any{"id": "recCL005", "Client ID": "CL005", "Assigned KAM": "K1"})
	managed, _ := r.ManagedClients(ctx, "K1")
	assert.False(t, managed.Contains("CL005"))

	f.now = f.now.Add(31 * time.Second)
	managed, err = r.ManagedClients(ctx, "K1")
	require.NoError(t, err)
	assert.True(t, managed.Contains("CL005"))
	assert.Equal(t, 2, f.store.FetchCount(records.TableClients))
}

func TestManagedClientsStoreFailurePropagates(t *testing.T) {
	f := newFixture()
	f.store.FailFetch(records.TableClients, errors.New("upstream 503"))
	kam := Actor{Role: RoleKAM, KAMID: "K1"}

	got, err := f.resolver().Scope(context.Background(), kam, LoanFiles, f.rows(t, records.TableLoanFiles))

	assert.Nil(t, got)
	assert.Equal(t, apperr.KindUnavailable, apperr.KindOf(err))
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, string) ([]string, bool, error) {
	return nil, false, errors.New("redis down")
}

func (brokenCache) Set(context.Context, string, []string, time.Duration) error {
	return errors.New("redis down")
}

func TestCacheFailureFallsBackToStore(t *testing.T) {
	f := newFixture()
	r := NewResolver(f.store, brokenCache{}, time.Minute, nil)

	managed, err := r.ManagedClients(context.Background(), "K1")

	require.NoError(t, err)
	assert.True(t, managed.Contains("CL001"))
}

func TestClientScope(t *testing.T) {
	f := newFixture()
	r := f.resolver()
	ctx := context.Background()
	client := Actor{Role: RoleClient, ClientID: "CL001"}

	files, err := r.Scope(ctx, client, LoanFiles, f.rows(t, records.TableLoanFiles))
	require.NoError(t, err)
	assert.Equal(t, []string{"recF1"}, ids(files))

	ledger, err := r.Scope(ctx, client, LedgerEntries, f.rows(t, records.TableLedger))
	require.NoError(t, err)
	assert.Equal(t, []string{"L1"}, ids(ledger))

	audit, err := r.Scope(ctx, client, AuditLogRows, f.rows(t, records.TableAuditLog))
	require.NoError(t, err)
	assert.Equal(t, []string{"A1"}, ids(audit))

	clients, err := r.Scope(ctx, client, Clients, f.rows(t, records.TableClients))
	require.NoError(t, err)
	assert.Equal(t, []string{"recCL001"}, ids(clients))
}

func TestNBFCScope(t *testing.T) {
	f := newFixture()
	r := f.resolver()
	ctx := context.Background()
	nbfc := Actor{Role: RoleNBFC, NBFCID: "N2"}

	files, err := r.Scope(ctx, nbfc, LoanFiles, f.rows(t, records.TableLoanFiles))
	require.NoError(t, err)
	assert.Equal(t, []string{"recF3"}, ids(files))

	// audit row references the file by record id
	audit, err := r.Scope(ctx, nbfc, AuditLogRows, f.rows(t, records.TableAuditLog))
	require.NoError(t, err)
	assert.Equal(t, []string{"A2"}, ids(audit))

	clients, err := r.Scope(ctx, nbfc, Clients, f.rows(t, records.TableClients))
	require.NoError(t, err)
	assert.Equal(t, []string{"recCL003"}, ids(clients))

	ledger, err := r.Scope(ctx, nbfc, LedgerEntries, f.rows(t, records.TableLedger))
	require.NoError(t, err)
	assert.Empty(t, ledger)
}

func TestKAMAuditAndLedgerScope(t *testing.T) {
	f := newFixture()
	r := f.resolver()
	ctx := context.Background()
	kam := Actor{Role: RoleKAM, KAMID: "K1"}

	audit, err := r.Scope(ctx, kam, AuditLogRows, f.rows(t, records.TableAuditLog))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A1", "A3"}, ids(audit))

	ledger, err := r.Scope(ctx, kam, LedgerEntries, f.rows(t, records.TableLedger))
	require.NoError(t, err)
	assert.Equal(t, []string{"L1"}, ids(ledger))

	clients, err := r.Scope(ctx, kam, Clients, f.rows(t, records.TableClients))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"recCL001", "recCL002"}, ids(clients))
}

func TestCreditSeesEverything(t *testing.T) {
	f := newFixture()
	rows := f.rows(t, records.TableLoanFiles)
	got, err := f.resolver().Scope(context.Background(), Actor{Role: RoleCredit}, LoanFiles, rows)
	require.NoError(t, err)
	assert.Len(t, got, len(rows))
}

func TestScopeFailsClosed(t *testing.T) {
	f := newFixture()
	r := f.resolver()
	ctx := context.Background()
	tables := map[TableKind]string{
		LoanFiles:     records.TableLoanFiles,
		LedgerEntries: records.TableLedger,
		AuditLogRows:  records.TableAuditLog,
		Clients:       records.TableClients,
	}
	actors := map[string]Actor{
		"client without id": {Role: RoleClient},
		"kam without id":    {Role: RoleKAM},
		"nbfc without id":   {Role: RoleNBFC},
		"kam managing none": {Role: RoleKAM, KAMID: "K404"},
		"admin":             {Role: RoleAdmin, ID: "root"},
		"unknown role":      {Role: Role("auditor"), ClientID: "CL001"},
	}

	for name, actor := range actors {
		for kind, table := range tables {
			t.Run(name+"/"+string(kind), func(t *testing.T) {
				got, err := r.Scope(ctx, actor, kind, f.rows(t, table))
				require.NoError(t, err)
				assert.Empty(t, got)
			})
		}
	}
}

func TestScopeLogsOnlyUnknownRoles(t *testing.T) {
	f := newFixture()
	logger, hook := logtest.NewNullLogger()
	r := NewResolver(f.store, f.cache, 30*time.Second, logger)
	ctx := context.Background()

	got, err := r.Scope(ctx, Actor{Role: RoleAdmin, ID: "root"}, LoanFiles, f.rows(t, records.TableLoanFiles))
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, hook.AllEntries(), "admin is a known role")

	_, err = r.Scope(ctx, Actor{Role: Role("auditor"), ClientID: "CL001"}, LoanFiles, f.rows(t, records.TableLoanFiles))
	require.NoError(t, err)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "unknown role, returning no rows", hook.LastEntry().Message)
}
