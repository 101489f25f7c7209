package graph

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"memograph/backend/pkg/errors"
)

// ============================================================================
// Backend Connections
// ============================================================================

// backendConn is one raw session against the graph backend
type backendConn interface {
	Query(ctx context.Context, graphName, statement string, params map[string]interface{}) (QueryResult, error)
	Ping(ctx context.Context) error
	Close() error
}

// Dialer opens a new backend session
type Dialer func(ctx context.Context) (backendConn, error)

// ConnState tracks a pooled connection's lifecycle
type ConnState string

const (
	ConnIdle  ConnState = "idle"
	ConnInUse ConnState = "in_use"
	ConnStale ConnState = "stale"
)

// Connection wraps one backend session. It is owned exclusively by the pool
// and borrowed by exactly one caller at a time.
type Connection struct {
	id         string
	conn       backendConn
	state      ConnState
	createdAt  time.Time
	lastUsedAt time.Time
}

// ID returns the connection's identity
func (c *Connection) ID() string {
	return c.id
}

// Query runs one statement on this connection's session
func (c *Connection) Query(ctx context.Context, graphName, statement string, params map[string]interface{}) (QueryResult, error) {
	return c.conn.Query(ctx, graphName, statement, params)
}

func newConnection(conn backendConn) *Connection {
	now := time.Now()
	return &Connection{
		id:         uuid.NewString(),
		conn:       conn,
		state:      ConnIdle,
		createdAt:  now,
		lastUsedAt: now,
	}
}

// ============================================================================
// FalkorDB Transport
// ============================================================================

// falkorConn executes GRAPH.QUERY over a dedicated Redis-protocol client.
// One pool Connection owns one client with a single underlying socket.
type falkorConn struct {
	client *redis.Client
}

// NewFalkorDialer returns a Dialer for the given backend address
func NewFalkorDialer(addr, password string) Dialer {
	return func(ctx context.Context) (backendConn, error) {
		client := redis.NewClient(&redis.Options{
			Addr:         addr,
			Password:     password,
			PoolSize:     1,
			MinIdleConns: 1,
			MaxRetries:   -1, // retry policy lives in the pool, not the client
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, errors.Classify(err)
		}
		return &falkorConn{client: client}, nil
	}
}

func (f *falkorConn) Ping(ctx context.Context) error {
	return f.client.Ping(ctx).Err()
}

func (f *falkorConn) Close() error {
	return f.client.Close()
}

// Query sends GRAPH.QUERY with the statement's parameters encoded into a
// CYPHER header, the backend's native parameter mechanism
func (f *falkorConn) Query(ctx context.Context, graphName, statement string, params map[string]interface{}) (QueryResult, error) {
	full, err := withParamHeader(statement, params)
	if err != nil {
		return QueryResult{}, err
	}

	reply, err := f.client.Do(ctx, "GRAPH.QUERY", graphName, full).Result()
	if err != nil {
		return QueryResult{}, errors.Classify(err)
	}

	return parseReply(reply)
}

// withParamHeader prefixes the statement with `CYPHER k=v ...`. Values are
// encoded as Cypher literals with strings escaped, which is what keeps
// parameter content out of statement syntax.
func withParamHeader(statement string, params map[string]interface{}) (string, error) {
	if len(params) == 0 {
		return statement, nil
	}

	var b strings.Builder
	b.WriteString("CYPHER ")
	for _, key := range sortedParamKeys(params) {
		literal, err := encodeLiteral(params[key])
		if err != nil {
			return "", err
		}
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(literal)
		b.WriteByte(' ')
	}
	b.WriteString(statement)
	return b.String(), nil
}

func sortedParamKeys(params map[string]interface{}) []string {
	m := make(map[string]interface{}, len(params))
	for k, v := range params {
		m[k] = v
	}
	return sortedKeys(m)
}

func encodeLiteral(value interface{}) (string, error) {
	switch v := value.(type) {
	case nil:
		return "null", nil
	case string:
		return quoteString(v), nil
	case bool:
		return strconv.FormatBool(v), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case []string:
		parts := make([]string, len(v))
		for i, s := range v {
			parts[i] = quoteString(s)
		}
		return "[" + strings.Join(parts, ", ") + "]", nil
	case []interface{}:
		parts := make([]string, len(v))
		for i, item := range v {
			encoded, err := encodeLiteral(item)
			if err != nil {
				return "", err
			}
			parts[i] = encoded
		}
		return "[" + strings.Join(parts, ", ") + "]", nil
	default:
		return "", errors.New(errors.CodeInvalidQuery,
			fmt.Sprintf("unsupported parameter type %T", value), nil)
	}
}

func quoteString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return "'" + s + "'"
}

// ============================================================================
// Reply Parsing
// ============================================================================

// parseReply normalizes the GRAPH.QUERY reply. Write-only statements return
// a single statistics array; read statements return header, rows, statistics.
func parseReply(reply interface{}) (QueryResult, error) {
	sections, ok := reply.([]interface{})
	if !ok {
		return QueryResult{}, errors.New(errors.CodeUnknown,
			fmt.Sprintf("unexpected reply shape %T", reply), nil)
	}

	switch len(sections) {
	case 1:
		return QueryResult{Statistics: ParseStatistics(stringSlice(sections[0]))}, nil
	case 3:
		header := stringSlice(sections[0])
		rows := parseRows(header, sections[1])
		stats := ParseStatistics(stringSlice(sections[2]))
		return QueryResult{Rows: rows, Statistics: stats}, nil
	default:
		return QueryResult{}, errors.New(errors.CodeUnknown,
			fmt.Sprintf("unexpected reply section count %d", len(sections)), nil)
	}
}

func parseRows(header []string, raw interface{}) []map[string]interface{} {
	rawRows, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	rows := make([]map[string]interface{}, 0, len(rawRows))
	for _, rawRow := range rawRows {
		cells, ok := rawRow.([]interface{})
		if !ok {
			continue
		}
		row := make(map[string]interface{}, len(header))
		for i, col := range header {
			if i < len(cells) {
				row[col] = decodeValue(cells[i])
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// decodeValue converts a reply cell into a Go value. Arrays of two-element
// [key, value] pairs decode as maps, which is how the backend renders
// property containers.
func decodeValue(cell interface{}) interface{} {
	list, ok := cell.([]interface{})
	if !ok {
		return cell
	}

	if m, ok := decodePairs(list); ok {
		return m
	}

	decoded := make([]interface{}, len(list))
	for i, item := range list {
		decoded[i] = decodeValue(item)
	}
	return decoded
}

func decodePairs(list []interface{}) (map[string]interface{}, bool) {
	if len(list) == 0 {
		return nil, false
	}
	m := make(map[string]interface{}, len(list))
	for _, item := range list {
		pair, ok := item.([]interface{})
		if !ok || len(pair) != 2 {
			return nil, false
		}
		key, ok := pair[0].(string)
		if !ok {
			return nil, false
		}
		m[key] = decodeValue(pair[1])
	}
	return m, true
}

func stringSlice(raw interface{}) []string {
	list, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
