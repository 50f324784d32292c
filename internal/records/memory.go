package records

import (
	"context"
	"sync"

	"github.com/fixr105/Seven-Render-sub002/internal/util"
)

// Memory is an in-process Gateway for tests and local runs. It keeps rows in
// insertion order per table and hands out copies.
type Memory struct {
	mu         sync.RWMutex
	tables     map[string][]Row
	fetchErrs  map[string]error
	upsertErrs map[string]error
	fetches    map[string]int
}

func NewMemory() *Memory {
	return &Memory{
		tables:     make(map[string][]Row),
		fetchErrs:  make(map[string]error),
		upsertErrs: make(map[string]error),
		fetches:    make(map[string]int),
	}
}

// Seed appends rows to table as-is, flattening nested shapes.
func (m *Memory) Seed(table string, rows ...map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, raw := range rows {
		m.tables[table] = append(m.tables[table], Flatten(raw))
	}
}

// FailFetch makes every FetchTable(table) return err. A nil err clears it.
func (m *Memory) FailFetch(table string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.fetchErrs, table)
		return
	}
	m.fetchErrs[table] = err
}

// FailUpsert makes every Upsert(table) return err. A nil err clears it.
func (m *Memory) FailUpsert(table string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.upsertErrs, table)
		return
	}
	m.upsertErrs[table] = err
}

// FetchCount reports how many times table was fetched.
func (m *Memory) FetchCount(table string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fetches[table]
}

func (m *Memory) FetchTable(_ context.Context, table string) ([]Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches[table]++
	if err := m.fetchErrs[table]; err != nil {
		return nil, err
	}
	rows := m.tables[table]
	result := make([]Row, len(rows))
	for i, row := range rows {
		result[i] = row.Clone()
	}
	return result, nil
}

func (m *Memory) Upsert(_ context.Context, table string, row Row) (Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.upsertErrs[table]; err != nil {
		return nil, err
	}
	stored := Flatten(row)
	if stored.ID() == "" {
		stored[FieldID] = util.NewID("rec")
	}
	rows := m.tables[table]
	for i, existing := range rows {
		if SameRecord(table, existing, stored) {
			stored[FieldID] = existing.ID()
			rows[i] = stored
			return stored.Clone(), nil
		}
	}
	m.tables[table] = append(rows, stored)
	return stored.Clone(), nil
}
