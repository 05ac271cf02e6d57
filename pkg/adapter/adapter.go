// Package adapter owns the bridge core: one websocket session per enabled
// account, the in-flight call table correlating requests to out-of-band
// responses, and the frame router feeding converted events to the host bus.
package adapter

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/erisforge/onebridge/pkg/config"
	"github.com/erisforge/onebridge/pkg/logger"
	"github.com/erisforge/onebridge/pkg/onebot"
)

var (
	// ErrConnectionUnavailable is returned when a call targets an account
	// with no live session.
	ErrConnectionUnavailable = errors.New("no live connection for account")

	// ErrUnknownAccount is returned for account names outside the registry.
	ErrUnknownAccount = errors.New("unknown account")
)

// Emitter delivers converted events to the host system.
type Emitter interface {
	Emit(account string, evt *onebot.Event)
}

// ConnHandler runs an accepted inbound websocket for one account.
type ConnHandler func(conn *websocket.Conn)

// AuthHandler validates an inbound upgrade request before any frame is
// processed.
type AuthHandler func(r *http.Request) bool

// SocketRouter registers one inbound endpoint per server-mode account.
type SocketRouter interface {
	RegisterSocketRoute(name, path string, handler ConnHandler, auth AuthHandler)
}

// pendingCleanupGrace is how long a resolved or timed-out call entry stays in
// the table, absorbing a response that races the timeout. Tunable.
const pendingCleanupGrace = 5 * time.Second

// Adapter is the explicit context object tying registry, sessions and the
// correlator together. Constructed once and passed to all components; there
// is no package-level state.
type Adapter struct {
	registry map[string]config.Account
	states   map[string]*accountState
	bus      Emitter
	router   SocketRouter

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	dialer       *websocket.Dialer
	cleanupGrace time.Duration
}

// accountState is all mutable per-account state. Cross-account state is
// never shared; each account's mutex only guards its own session pointer and
// pending table.
type accountState struct {
	account config.Account

	mu      sync.Mutex
	session *Session
	pending map[string]*pendingCall
	seq     atomic.Uint64
}

// New builds an adapter over an immutable account registry. router may be
// nil when no server-mode accounts are enabled.
func New(registry map[string]config.Account, emitter Emitter, router SocketRouter) *Adapter {
	states := make(map[string]*accountState, len(registry))
	for name, account := range registry {
		states[name] = &accountState{
			account: account,
			pending: make(map[string]*pendingCall),
		}
	}
	return &Adapter{
		registry:     registry,
		states:       states,
		bus:          emitter,
		router:       router,
		dialer:       websocket.DefaultDialer,
		cleanupGrace: pendingCleanupGrace,
	}
}

// Start spawns connect loops for client-mode accounts and registers inbound
// routes for server-mode accounts. It returns immediately.
func (a *Adapter) Start(ctx context.Context) error {
	if !a.running.CompareAndSwap(false, true) {
		return nil
	}
	a.ctx, a.cancel = context.WithCancel(ctx)

	started := 0
	for _, name := range config.SortedAccountNames(a.registry) {
		state := a.states[name]
		if !state.account.Enabled {
			logger.InfoCF("adapter", "Account disabled, skipping", map[string]interface{}{
				"account": name,
			})
			continue
		}
		switch state.account.Mode {
		case config.ModeClient:
			a.wg.Add(1)
			go func(st *accountState) {
				defer a.wg.Done()
				a.connectLoop(st)
			}(state)
			started++
		case config.ModeServer:
			if a.router == nil {
				logger.ErrorCF("adapter", "Server-mode account has no socket router", map[string]interface{}{
					"account": name,
				})
				continue
			}
			a.registerInbound(state)
			started++
		}
	}

	logger.InfoCF("adapter", "Adapter started", map[string]interface{}{
		"accounts": started,
	})
	return nil
}

// Shutdown stops reconnection, closes every open session exactly once and
// waits for read loops and frame dispatches to drain. Safe to call twice.
// In-flight calls are not cancelled; they time out on their own.
func (a *Adapter) Shutdown() {
	if !a.running.CompareAndSwap(true, false) {
		return
	}
	if a.cancel != nil {
		a.cancel()
	}
	for _, state := range a.states {
		state.mu.Lock()
		if state.session != nil {
			state.session.Close()
			state.session = nil
		}
		state.mu.Unlock()
	}
	a.wg.Wait()
	logger.InfoC("adapter", "Adapter shut down")
}

// Running reports whether the adapter is between Start and Shutdown.
func (a *Adapter) Running() bool {
	return a.running.Load()
}

// SessionCount returns the number of live sessions, used by health checks.
func (a *Adapter) SessionCount() int {
	count := 0
	for _, state := range a.states {
		state.mu.Lock()
		if state.session != nil {
			count++
		}
		state.mu.Unlock()
	}
	return count
}

func (a *Adapter) state(account string) (*accountState, bool) {
	state, ok := a.states[account]
	return state, ok
}
