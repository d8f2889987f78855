package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Table names
const (
	TableFacts    = "facts"
	TableMoodLogs = "mood_logs"
	TableMessages = "messages"
	TableJournals = "journals"

	TablePreferences = "user_preferences"
)

// ErrInvalidIdentifier is returned when a table or column name is not a plain identifier
var ErrInvalidIdentifier = errors.New("invalid identifier")

var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Row is a single record keyed by column name.
// Timestamps are stored as unix milliseconds and lists as JSON text.
type Row map[string]interface{}

// Op is a filter comparison operator
type Op string

const (
	OpEq  Op = "="
	OpGt  Op = ">"
	OpGte Op = ">="
	OpLt  Op = "<"
	OpLte Op = "<="
)

// Filter restricts a query to rows where Column Op Value holds
type Filter struct {
	Column string
	Op     Op
	Value  interface{}
}

// Eq matches rows where column equals value
func Eq(column string, value interface{}) Filter {
	return Filter{Column: column, Op: OpEq, Value: value}
}

// Gte matches rows where column >= value
func Gte(column string, value interface{}) Filter {
	return Filter{Column: column, Op: OpGte, Value: value}
}

// Lte matches rows where column <= value
func Lte(column string, value interface{}) Filter {
	return Filter{Column: column, Op: OpLte, Value: value}
}

// Gt matches rows where column > value
func Gt(column string, value interface{}) Filter {
	return Filter{Column: column, Op: OpGt, Value: value}
}

// Lt matches rows where column < value
func Lt(column string, value interface{}) Filter {
	return Filter{Column: column, Op: OpLt, Value: value}
}

// Order sorts query results by a single column
type Order struct {
	Column string
	Desc   bool
}

// RowStore is the narrow CRUD contract the conversation core needs from persistence.
// All calls block until the backend answers or ctx expires; none are retried.
type RowStore interface {
	Insert(ctx context.Context, table string, row Row) error
	Select(ctx context.Context, table string, filters []Filter, order *Order, limit int) ([]Row, error)
	Update(ctx context.Context, table string, filters []Filter, patch Row) (int64, error)
	Delete(ctx context.Context, table string, filters []Filter) (int64, error)
}

// timeoutStore bounds every call of the wrapped store
type timeoutStore struct {
	inner   RowStore
	timeout time.Duration
}

// WithTimeout wraps a store so each call gets its own deadline
func WithTimeout(store RowStore, timeout time.Duration) RowStore {
	if timeout <= 0 {
		return store
	}
	return &timeoutStore{inner: store, timeout: timeout}
}

func (s *timeoutStore) Insert(ctx context.Context, table string, row Row) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.inner.Insert(ctx, table, row)
}

func (s *timeoutStore) Select(ctx context.Context, table string, filters []Filter, order *Order, limit int) ([]Row, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.inner.Select(ctx, table, filters, order, limit)
}

func (s *timeoutStore) Update(ctx context.Context, table string, filters []Filter, patch Row) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.inner.Update(ctx, table, filters, patch)
}

func (s *timeoutStore) Delete(ctx context.Context, table string, filters []Filter) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.inner.Delete(ctx, table, filters)
}

func validateIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
	}
	return nil
}

func validateFilters(filters []Filter) error {
	for _, f := range filters {
		if err := validateIdentifier(f.Column); err != nil {
			return err
		}
		switch f.Op {
		case OpEq, OpGt, OpGte, OpLt, OpLte:
		default:
			return fmt.Errorf("unsupported filter operator %q", f.Op)
		}
	}
	return nil
}

// TimeValue converts a timestamp to its stored representation
func TimeValue(t time.Time) int64 {
	return t.UnixMilli()
}

// JSONValue converts a list or object to its stored representation
func JSONValue(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(data)
}

// AsString normalises driver string representations
func AsString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}

// AsFloat normalises driver numeric representations
func AsFloat(v interface{}) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case float32:
		return float64(val)
	case int64:
		return float64(val)
	case int32:
		return float64(val)
	case int:
		return float64(val)
	case []byte:
		f, _ := strconv.ParseFloat(string(val), 64)
		return f
	case string:
		f, _ := strconv.ParseFloat(val, 64)
		return f
	default:
		return 0
	}
}

// AsInt64 normalises driver integer representations
func AsInt64(v interface{}) int64 {
	switch val := v.(type) {
	case int64:
		return val
	case int32:
		return int64(val)
	case int:
		return int64(val)
	case float64:
		return int64(val)
	case bool:
		if val {
			return 1
		}
		return 0
	case []byte:
		n, _ := strconv.ParseInt(string(val), 10, 64)
		return n
	case string:
		n, _ := strconv.ParseInt(val, 10, 64)
		return n
	default:
		return 0
	}
}

// AsBool normalises boolean columns (stored as 0/1 in SQL)
func AsBool(v interface{}) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return AsInt64(v) != 0
}

// AsTime converts a stored unix-millisecond timestamp back to time.Time
func AsTime(v interface{}) time.Time {
	if t, ok := v.(time.Time); ok {
		return t
	}
	ms := AsInt64(v)
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// AsStrings decodes a JSON text list column
func AsStrings(v interface{}) []string {
	raw := AsString(v)
	if raw == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}
