package database

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
)

// MemoryRowStore is a process-local RowStore used in development and tests.
// Rows keep insertion order unless an Order is given.
type MemoryRowStore struct {
	mu     sync.RWMutex
	tables map[string][]Row
}

// NewMemoryRowStore creates an empty in-memory store
func NewMemoryRowStore() *MemoryRowStore {
	return &MemoryRowStore{tables: make(map[string][]Row)}
}

func copyRow(row Row) Row {
	out := make(Row, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

// compareValues orders numbers numerically and everything else as strings
func compareValues(a, b interface{}) int {
	if isNumeric(a) && isNumeric(b) {
		fa, fb := AsFloat(a), AsFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	}
	if ba, ok := a.(bool); ok {
		a = AsInt64(ba)
	}
	if bb, ok := b.(bool); ok {
		b = AsInt64(bb)
	}
	return strings.Compare(AsString(a), AsString(b))
}

func isNumeric(v interface{}) bool {
	switch v.(type) {
	case int, int32, int64, float32, float64, bool:
		return true
	}
	return false
}

func matches(row Row, filters []Filter) bool {
	for _, f := range filters {
		v, ok := row[f.Column]
		if !ok {
			return false
		}
		c := compareValues(v, f.Value)
		switch f.Op {
		case OpEq:
			if c != 0 {
				return false
			}
		case OpGt:
			if c <= 0 {
				return false
			}
		case OpGte:
			if c < 0 {
				return false
			}
		case OpLt:
			if c >= 0 {
				return false
			}
		case OpLte:
			if c > 0 {
				return false
			}
		}
	}
	return true
}

// Insert adds a copy of row
func (s *MemoryRowStore) Insert(ctx context.Context, table string, row Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateIdentifier(table); err != nil {
		return err
	}
	if _, err := sortedColumns(row); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[table] = append(s.tables[table], copyRow(row))
	return nil
}

// Select returns copies of matching rows
func (s *MemoryRowStore) Select(ctx context.Context, table string, filters []Filter, order *Order, limit int) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateIdentifier(table); err != nil {
		return nil, err
	}
	if err := validateFilters(filters); err != nil {
		return nil, err
	}

	s.mu.RLock()
	var result []Row
	for _, row := range s.tables[table] {
		if matches(row, filters) {
			result = append(result, copyRow(row))
		}
	}
	s.mu.RUnlock()

	if order != nil {
		if err := validateIdentifier(order.Column); err != nil {
			return nil, err
		}
		sort.SliceStable(result, func(i, j int) bool {
			c := compareValues(result[i][order.Column], result[j][order.Column])
			if order.Desc {
				return c > 0
			}
			return c < 0
		})
	}
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Update applies patch to every matching row
func (s *MemoryRowStore) Update(ctx context.Context, table string, filters []Filter, patch Row) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := validateIdentifier(table); err != nil {
		return 0, err
	}
	if len(patch) == 0 {
		return 0, errors.New("empty update patch")
	}
	if _, err := sortedColumns(patch); err != nil {
		return 0, err
	}
	if err := validateFilters(filters); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, row := range s.tables[table] {
		if matches(row, filters) {
			for k, v := range patch {
				row[k] = v
			}
			n++
		}
	}
	return n, nil
}

// Delete removes every matching row
func (s *MemoryRowStore) Delete(ctx context.Context, table string, filters []Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := validateIdentifier(table); err != nil {
		return 0, err
	}
	if err := validateFilters(filters); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.tables[table][:0]
	var n int64
	for _, row := range s.tables[table] {
		if matches(row, filters) {
			n++
			continue
		}
		kept = append(kept, row)
	}
	s.tables[table] = kept
	return n, nil
}
