package adapter

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/erisforge/onebridge/pkg/config"
	"github.com/erisforge/onebridge/pkg/logger"
)

// Connection supervision. Client-mode accounts dial out and reconnect at a
// flat interval for as long as the adapter runs; server-mode accounts get
// one registered inbound route and rely on the remote peer to reconnect.

func (a *Adapter) connectLoop(state *accountState) {
	account := state.account
	header := http.Header{}
	if account.ClientToken != "" {
		header.Set("Authorization", "Bearer "+account.ClientToken)
	}

	attempt := 0
	for a.running.Load() {
		conn, resp, err := a.dialer.DialContext(a.ctx, account.ClientURL, header)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err != nil {
			attempt++
			logger.ErrorCF("conn", "Connection attempt failed", map[string]interface{}{
				"account": account.Name,
				"url":     account.ClientURL,
				"attempt": attempt,
				"error":   err.Error(),
			})
			if !a.sleepInterval(account.ReconnectInterval) {
				return
			}
			continue
		}

		attempt = 0
		logger.InfoCF("conn", "Connected to OneBot endpoint", map[string]interface{}{
			"account": account.Name,
			"url":     account.ClientURL,
		})

		session := newSession(conn, false)
		if !a.installSession(state, session) {
			return
		}
		a.readLoop(state, session)
		a.removeSession(state, session)

		// Read-loop exit is the sole reconnection trigger. The next dial
		// happens immediately; only dial failures wait out the interval.
	}
}

// sleepInterval waits for the retry interval, returning false when the
// adapter shut down meanwhile.
func (a *Adapter) sleepInterval(interval time.Duration) bool {
	select {
	case <-a.ctx.Done():
		return false
	case <-time.After(interval):
		return a.running.Load()
	}
}

// installSession stores a fresh session, closing any predecessor so that at
// most one session exists per account at any instant. The running flag is
// re-checked under the account mutex: Shutdown flips it before its close
// pass, so a session installed here is always visible to that pass, and a
// dial that raced Shutdown is closed here instead of being stranded.
func (a *Adapter) installSession(state *accountState, session *Session) bool {
	state.mu.Lock()
	if !a.running.Load() {
		state.mu.Unlock()
		session.Close()
		return false
	}
	previous := state.session
	state.session = session
	state.mu.Unlock()

	if previous != nil {
		logger.WarnCF("conn", "Replacing existing session", map[string]interface{}{
			"account": state.account.Name,
		})
		previous.Close()
	}
	return true
}

// removeSession clears the table entry if it still points at this session.
func (a *Adapter) removeSession(state *accountState, session *Session) {
	state.mu.Lock()
	if state.session == session {
		state.session = nil
	}
	state.mu.Unlock()
	session.Close()
	logger.DebugCF("conn", "Session closed", map[string]interface{}{
		"account": state.account.Name,
		"inbound": session.inbound,
		"age":     time.Since(session.openedAt).String(),
	})
}

// readLoop pulls frames off one session in arrival order and dispatches each
// in its own goroutine so a slow conversion never blocks the socket. It
// returns when the transport errors, the remote closes, or Shutdown runs.
func (a *Adapter) readLoop(state *accountState, session *Session) {
	for {
		msgType, data, err := session.conn.ReadMessage()
		if err != nil {
			if a.running.Load() && !websocket.IsCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.WarnCF("conn", "Session read error", map[string]interface{}{
					"account": state.account.Name,
					"error":   err.Error(),
				})
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		frame := data
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.HandleFrame(state.account.Name, frame)
		}()
	}
}

// registerInbound wires one server-mode account into the socket router.
func (a *Adapter) registerInbound(state *accountState) {
	account := state.account
	a.router.RegisterSocketRoute(account.Name, account.ServerPath,
		func(conn *websocket.Conn) {
			a.runInbound(state, conn)
		},
		inboundAuthenticator(account),
	)
	logger.InfoCF("conn", "Registered inbound route", map[string]interface{}{
		"account": account.Name,
		"path":    account.ServerPath,
	})
}

// runInbound adopts an authenticated inbound connection as the account's
// session. Closed inbound sessions are not reconnected from this side.
func (a *Adapter) runInbound(state *accountState, conn *websocket.Conn) {
	session := newSession(conn, true)
	if !a.installSession(state, session) {
		return
	}
	logger.InfoCF("conn", "Inbound OneBot client connected", map[string]interface{}{
		"account": state.account.Name,
	})
	a.readLoop(state, session)
	a.removeSession(state, session)
	logger.InfoCF("conn", "Inbound OneBot client disconnected", map[string]interface{}{
		"account": state.account.Name,
	})
}

// inboundAuthenticator validates the bearer token from the Authorization
// header or, failing that, the token query parameter.
func inboundAuthenticator(account config.Account) AuthHandler {
	return func(r *http.Request) bool {
		if account.ServerToken == "" {
			return true
		}
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" || token == r.Header.Get("Authorization") {
			token = r.URL.Query().Get("token")
		}
		if token != account.ServerToken {
			logger.WarnCF("conn", "Inbound client provided an invalid token", map[string]interface{}{
				"account": account.Name,
			})
			return false
		}
		return true
	}
}
