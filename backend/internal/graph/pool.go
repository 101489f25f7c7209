package graph

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"memograph/backend/pkg/errors"
	"memograph/backend/pkg/logger"
)

// ============================================================================
// Connection Pool
// ============================================================================
//
// The pool is a single goroutine that owns the connection slice outright.
// Callers talk to it through a command channel, so no pool state is ever
// touched from two goroutines; there are no locks here on purpose. The
// actor itself never performs I/O: dialing and liveness probes run on the
// acquiring caller's goroutine against a reserved slot, so Release and
// Health stay responsive while a dial backs off.

// PoolConfig carries the pool's tuning knobs
type PoolConfig struct {
	MaxSize         int
	AcquireTimeout  time.Duration
	PollInterval    time.Duration
	IdleThreshold   time.Duration
	ReapInterval    time.Duration
	ProbeTimeout    time.Duration
	DialMaxAttempts int
	DialBackoffBase time.Duration
	DialBackoffCap  time.Duration
}

// DefaultPoolConfig returns the production defaults
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxSize:         5,
		AcquireTimeout:  10 * time.Second,
		PollInterval:    100 * time.Millisecond,
		IdleThreshold:   5 * time.Minute,
		ReapInterval:    time.Minute,
		ProbeTimeout:    2 * time.Second,
		DialMaxAttempts: 5,
		DialBackoffBase: 100 * time.Millisecond,
		DialBackoffCap:  3 * time.Second,
	}
}

// acquireReply is the actor's answer to one try_acquire: a ready
// connection, a reserved slot the caller should dial into, or neither
// (keep waiting)
type acquireReply struct {
	conn     *Connection
	reserved bool
}

type poolCommand struct {
	kind    string // "try_acquire", "release", "discard", "install", "cancel_reserve", "health", "close"
	conn    *Connection
	acquire chan acquireReply
	health  chan HealthStatus
	closed  chan struct{}
}

// Pool is a bounded set of backend connections
type Pool struct {
	cfg      PoolConfig
	dial     Dialer
	commands chan poolCommand
	done     chan struct{}
	logger   *zap.Logger
}

// NewPool starts the pool actor
func NewPool(cfg PoolConfig, dial Dialer) *Pool {
	p := &Pool{
		cfg:      cfg,
		dial:     dial,
		commands: make(chan poolCommand),
		done:     make(chan struct{}),
		logger:   logger.Get(),
	}
	go p.run()
	return p
}

// send delivers a command unless the actor has shut down
func (p *Pool) send(cmd poolCommand) bool {
	select {
	case p.commands <- cmd:
		return true
	case <-p.done:
		return false
	}
}

// Acquire borrows a connection, waiting up to the acquire timeout for one
// to free up. Exceeding the timeout fails with pool_exhausted.
func (p *Pool) Acquire(ctx context.Context) (*Connection, error) {
	deadline := time.Now().Add(p.cfg.AcquireTimeout)

	for {
		reply := make(chan acquireReply, 1)
		if !p.send(poolCommand{kind: "try_acquire", acquire: reply}) {
			return nil, errors.New(errors.CodePoolExhausted, "pool is shut down", nil)
		}
		res := <-reply

		if res.conn != nil {
			// Probe on this goroutine, never in the actor. A dead idle
			// connection is discarded and the loop retries immediately.
			if p.probeStale(res.conn) {
				p.logger.Debug("Discarding stale connection", zap.String("conn_id", res.conn.id))
				p.discard(res.conn)
				continue
			}
			return res.conn, nil
		}

		if res.reserved {
			conn, err := p.dialWithBackoff()
			if err != nil {
				p.send(poolCommand{kind: "cancel_reserve"})
				return nil, err
			}
			if !p.send(poolCommand{kind: "install", conn: conn}) {
				_ = conn.conn.Close()
				return nil, errors.New(errors.CodePoolExhausted, "pool is shut down", nil)
			}
			return conn, nil
		}

		if time.Now().After(deadline) {
			return nil, errors.New(errors.CodePoolExhausted,
				"no connection became available before the acquire timeout", nil)
		}

		select {
		case <-ctx.Done():
			return nil, errors.Classify(ctx.Err())
		case <-time.After(p.cfg.PollInterval):
		}
	}
}

// Release returns a borrowed connection to the pool
func (p *Pool) Release(conn *Connection) {
	if conn == nil {
		return
	}
	if !p.send(poolCommand{kind: "release", conn: conn}) {
		_ = conn.conn.Close()
	}
}

// discard hands a dead connection back to the actor for removal
func (p *Pool) discard(conn *Connection) {
	if !p.send(poolCommand{kind: "discard", conn: conn}) {
		_ = conn.conn.Close()
	}
}

// Health reports the pool's current size and availability
func (p *Pool) Health() HealthStatus {
	reply := make(chan HealthStatus, 1)
	if !p.send(poolCommand{kind: "health", health: reply}) {
		return HealthStatus{Status: "closed"}
	}
	return <-reply
}

// Close shuts the actor down and closes every pooled connection
func (p *Pool) Close() {
	closed := make(chan struct{})
	if p.send(poolCommand{kind: "close", closed: closed}) {
		<-closed
	}
}

// run is the actor loop; it is the only goroutine that touches conns.
// reserved counts slots handed to callers whose dial is still in flight;
// they count against MaxSize so concurrent acquirers can't overshoot it.
func (p *Pool) run() {
	var conns []*Connection
	reserved := 0

	reaper := time.NewTicker(p.cfg.ReapInterval)
	defer reaper.Stop()

	for {
		select {
		case cmd := <-p.commands:
			switch cmd.kind {
			case "try_acquire":
				cmd.acquire <- p.tryAcquire(&conns, &reserved)
			case "release":
				p.release(conns, cmd.conn)
			case "discard":
				conns = p.remove(conns, cmd.conn)
			case "install":
				reserved--
				cmd.conn.state = ConnInUse
				conns = append(conns, cmd.conn)
				p.logger.Info("Pool connection created",
					zap.String("conn_id", cmd.conn.id),
					zap.Int("pool_size", len(conns)),
				)
			case "cancel_reserve":
				reserved--
			case "health":
				cmd.health <- p.snapshot(conns)
			case "close":
				for _, c := range conns {
					_ = c.conn.Close()
				}
				conns = nil
				close(p.done)
				close(cmd.closed)
				return
			}
		case <-reaper.C:
			conns = p.reap(conns)
		}
	}
}

// tryAcquire hands out an idle connection, reserves a dial slot when the
// pool has headroom, or reports neither so the caller keeps waiting
func (p *Pool) tryAcquire(conns *[]*Connection, reserved *int) acquireReply {
	for _, c := range *conns {
		if c.state == ConnIdle {
			c.state = ConnInUse
			c.lastUsedAt = time.Now()
			return acquireReply{conn: c}
		}
	}
	if len(*conns)+*reserved < p.cfg.MaxSize {
		*reserved++
		return acquireReply{reserved: true}
	}
	return acquireReply{}
}

func (p *Pool) release(conns []*Connection, conn *Connection) {
	for _, c := range conns {
		if c.id == conn.id {
			c.state = ConnIdle
			c.lastUsedAt = time.Now()
			return
		}
	}
	// Released connection was reaped or never pooled; close it
	_ = conn.conn.Close()
}

// remove drops a connection whose probe found it dead
func (p *Pool) remove(conns []*Connection, conn *Connection) []*Connection {
	kept := conns[:0]
	for _, c := range conns {
		if c.id == conn.id {
			c.state = ConnStale
			_ = c.conn.Close()
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

// probeStale is the liveness check before a pooled connection is reused.
// It runs on the acquiring goroutine and touches no pool state.
func (p *Pool) probeStale(c *Connection) bool {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.ProbeTimeout)
	defer cancel()
	return c.conn.Ping(ctx) != nil
}

// dialWithBackoff creates a connection, retrying retryable failures with
// exponential backoff and jitter so restarts don't synchronize. It runs
// on the acquiring goroutine against a reserved slot.
func (p *Pool) dialWithBackoff() (*Connection, error) {
	var lastErr error
	for attempt := 0; attempt < p.cfg.DialMaxAttempts; attempt++ {
		if attempt > 0 {
			delay := p.backoffDelay(attempt)
			p.logger.Warn("Retrying backend connection",
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", delay),
			)
			time.Sleep(delay)
		}

		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.ProbeTimeout)
		conn, err := p.dial(ctx)
		cancel()
		if err == nil {
			return newConnection(conn), nil
		}

		lastErr = err
		if !errors.IsRetryable(err) {
			return nil, errors.Classify(err)
		}
	}
	return nil, errors.Classify(lastErr)
}

// backoffDelay computes base * 2^attempt capped, with ±20% jitter
func (p *Pool) backoffDelay(attempt int) time.Duration {
	delay := p.cfg.DialBackoffBase << uint(attempt)
	if delay > p.cfg.DialBackoffCap || delay <= 0 {
		delay = p.cfg.DialBackoffCap
	}
	jitter := 0.8 + 0.4*rand.Float64()
	return time.Duration(float64(delay) * jitter)
}

// reap closes connections that sat idle past the threshold
func (p *Pool) reap(conns []*Connection) []*Connection {
	kept := conns[:0]
	for _, c := range conns {
		if c.state == ConnIdle && time.Since(c.lastUsedAt) > p.cfg.IdleThreshold {
			p.logger.Info("Reaping idle connection",
				zap.String("conn_id", c.id),
				zap.Duration("idle", time.Since(c.lastUsedAt)),
			)
			_ = c.conn.Close()
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

func (p *Pool) snapshot(conns []*Connection) HealthStatus {
	available := 0
	for _, c := range conns {
		if c.state == ConnIdle {
			available++
		}
	}
	status := "ok"
	if len(conns) >= p.cfg.MaxSize && available == 0 {
		status = "saturated"
	}
	return HealthStatus{
		Status:               status,
		PoolSize:             len(conns),
		AvailableConnections: available,
	}
}
