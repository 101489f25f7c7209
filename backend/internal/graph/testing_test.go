package graph

import (
	"context"
	"strings"
	"sync"
	"time"

	"memograph/backend/internal/cache"
	"memograph/backend/internal/metadata"
)

// ============================================================================
// Test Fakes
// ============================================================================

type recordedQuery struct {
	graphName string
	statement string
	params    map[string]interface{}
}

// queryHandler scripts a fake backend's reply per statement
type queryHandler func(graphName, statement string, params map[string]interface{}) (QueryResult, error)

type fakeConn struct {
	mu      sync.Mutex
	closed  bool
	pingErr error
	queries []recordedQuery
	handler queryHandler
}

func (f *fakeConn) Query(_ context.Context, graphName, statement string, params map[string]interface{}) (QueryResult, error) {
	f.mu.Lock()
	f.queries = append(f.queries, recordedQuery{graphName: graphName, statement: statement, params: params})
	handler := f.handler
	f.mu.Unlock()
	if handler != nil {
		return handler(graphName, statement, params)
	}
	return QueryResult{Statistics: map[string]int64{}}, nil
}

func (f *fakeConn) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pingErr
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) setPingErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pingErr = err
}

func (f *fakeConn) recorded() []recordedQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recordedQuery, len(f.queries))
	copy(out, f.queries)
	return out
}

// fakeDialer hands out fakeConns, optionally failing scripted attempts or
// stalling each dial by dialDelay
type fakeDialer struct {
	mu        sync.Mutex
	handler   queryHandler
	dialErrs  []error // consumed in order before successful dials
	dialDelay time.Duration
	conns     []*fakeConn
}

func (d *fakeDialer) dial(context.Context) (backendConn, error) {
	d.mu.Lock()
	delay := d.dialDelay
	var err error
	if len(d.dialErrs) > 0 {
		err = d.dialErrs[0]
		d.dialErrs = d.dialErrs[1:]
	}
	d.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	conn := &fakeConn{handler: d.handler}
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

// allQueries flattens every connection's recorded statements in dial order
func (d *fakeDialer) allQueries() []recordedQuery {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []recordedQuery
	for _, conn := range d.conns {
		out = append(out, conn.recorded()...)
	}
	return out
}

func (d *fakeDialer) queriesMatching(fragment string) []recordedQuery {
	var out []recordedQuery
	for _, q := range d.allQueries() {
		if strings.Contains(q.statement, fragment) {
			out = append(out, q)
		}
	}
	return out
}

type fakeInferrer struct {
	candidates []CandidateRelationship
	err        error
}

func (f *fakeInferrer) InferRelationships(context.Context, []Entity) ([]CandidateRelationship, error) {
	return f.candidates, f.err
}

func testPoolConfig() PoolConfig {
	cfg := DefaultPoolConfig()
	cfg.MaxSize = 3
	cfg.AcquireTimeout = 2 * time.Second
	cfg.PollInterval = 10 * time.Millisecond
	cfg.ReapInterval = time.Hour
	cfg.ProbeTimeout = 100 * time.Millisecond
	cfg.DialMaxAttempts = 3
	cfg.DialBackoffBase = time.Millisecond
	cfg.DialBackoffCap = 5 * time.Millisecond
	return cfg
}

// testEngine wires the whole stack over a fake backend
type testEngine struct {
	dialer   *fakeDialer
	pool     *Pool
	resolver *Resolver
	executor *Executor
	cache    *cache.Cache
	store    *cache.MemoryStore
	service  *Service
}

func newTestEngine(handler queryHandler) *testEngine {
	dialer := &fakeDialer{handler: handler}
	pool := NewPool(testPoolConfig(), dialer.dial)
	resolver := NewResolver(pool, metadata.NewMemoryStore())
	executor := NewExecutor(pool, resolver, 10)
	store := cache.NewMemoryStore()
	coherency := cache.New(store, cache.DefaultConfig())
	return &testEngine{
		dialer:   dialer,
		pool:     pool,
		resolver: resolver,
		executor: executor,
		cache:    coherency,
		store:    store,
		service:  NewService(executor, pool, resolver, coherency),
	}
}

func (e *testEngine) close() {
	e.resolver.Close()
	e.pool.Close()
}
