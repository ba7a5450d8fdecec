package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"formpilot/pkg/logx"
)

var (
	// ErrQueueFull is returned when a user's worker queue cannot take another update.
	ErrQueueFull = errors.New("update queue is full")
	// ErrNotRunning is returned by Dispatch before Start or after Stop.
	ErrNotRunning = errors.New("dispatcher is not running")
)

// DefaultQueueSize is the per-user buffer used when none is configured.
const DefaultQueueSize = 16

// DefaultIdleTimeout is how long a user's worker waits for an update before it exits.
const DefaultIdleTimeout = 10 * time.Minute

// Handler processes one update. Calls for the same user never overlap.
type Handler interface {
	HandleUpdate(ctx context.Context, u Update)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, u Update)

func (f HandlerFunc) HandleUpdate(ctx context.Context, u Update) { f(ctx, u) }

// Dispatcher serializes updates per user: each user gets a worker goroutine fed by a buffered queue,
// while different users are handled concurrently. Idle workers exit and are started again on the
// user's next update.
type Dispatcher struct {
	handler     Handler
	queueSize   int
	idleTimeout time.Duration

	mu       sync.Mutex
	queues   map[int64]chan Update
	running  bool
	shutdown chan struct{}
	ctx      context.Context
	wg       sync.WaitGroup

	logger *logx.Logger
}

func NewDispatcher(handler Handler, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Dispatcher{
		handler:     handler,
		queueSize:   queueSize,
		idleTimeout: DefaultIdleTimeout,
		queues:      make(map[int64]chan Update),
		logger:      logx.NewLogger("dispatcher"),
	}
}

// SetIdleTimeout overrides DefaultIdleTimeout. Call before Start.
func (d *Dispatcher) SetIdleTimeout(timeout time.Duration) {
	if timeout > 0 {
		d.idleTimeout = timeout
	}
}

// Workers returns the number of users with a live worker.
func (d *Dispatcher) Workers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queues)
}

// Start accepts updates until Stop. ctx is handed to every handler call.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return fmt.Errorf("dispatcher is already running")
	}
	d.running = true
	d.ctx = ctx
	d.shutdown = make(chan struct{})
	d.logger.Info("Starting dispatcher")
	return nil
}

// Dispatch queues u on its user's worker, starting the worker on first contact.
func (d *Dispatcher) Dispatch(u Update) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return ErrNotRunning
	}

	q, ok := d.queues[u.UserID]
	if !ok {
		q = make(chan Update, d.queueSize)
		d.queues[u.UserID] = q
		d.wg.Add(1)
		go d.worker(d.ctx, d.shutdown, u.UserID, q)
	}

	select {
	case q <- u:
		return nil
	default:
		return fmt.Errorf("%w: user %d", ErrQueueFull, u.UserID)
	}
}

func (d *Dispatcher) worker(ctx context.Context, shutdown <-chan struct{}, userID int64, q chan Update) {
	defer d.wg.Done()
	idle := time.NewTimer(d.idleTimeout)
	defer idle.Stop()
	for {
		select {
		case <-shutdown:
			return
		case <-ctx.Done():
			return
		case u := <-q:
			d.handle(ctx, userID, u)
			idle.Reset(d.idleTimeout)
		case <-idle.C:
			if d.retire(userID, q) {
				logx.Debug(ctx, "dispatcher", "user %d: worker idle, exiting", userID)
				return
			}
			idle.Reset(d.idleTimeout)
		}
	}
}

// retire removes q if nothing is waiting in it. Dispatch sends under the same lock, so an update
// is never left in a retired queue.
func (d *Dispatcher) retire(userID int64, q chan Update) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(q) > 0 || d.queues[userID] != q {
		return false
	}
	delete(d.queues, userID)
	return true
}

func (d *Dispatcher) handle(ctx context.Context, userID int64, u Update) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("user %d: panic while handling update %d: %v", userID, u.ID, r)
		}
	}()
	d.handler.HandleUpdate(ctx, u)
}

// Stop rejects new updates and waits for in-flight handlers, or until ctx is done.
// Updates still queued are dropped.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	close(d.shutdown)
	d.queues = make(map[int64]chan Update)
	d.mu.Unlock()

	d.logger.Info("Stopping dispatcher")

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("Dispatcher stopped successfully")
		return nil
	case <-ctx.Done():
		d.logger.Warn("Dispatcher stop timed out")
		return ctx.Err()
	}
}
