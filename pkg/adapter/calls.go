package adapter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/erisforge/onebridge/pkg/logger"
	"github.com/erisforge/onebridge/pkg/onebot"
)

// pendingCall is one outstanding request awaiting its out-of-band response.
// The result slot is single-assignment: resolve wins exactly once, a second
// resolve is dropped.
type pendingCall struct {
	createdAt time.Time
	result    chan map[string]any
	once      sync.Once
}

func (p *pendingCall) resolve(raw map[string]any) bool {
	delivered := false
	p.once.Do(func() {
		p.result <- raw
		delivered = true
	})
	return delivered
}

// CallAPI issues one OneBot action on the account's live session and awaits
// the correlated response. Failure shapes are always a normalized
// StandardResponse; the error identifies the failure class for errors.Is.
// The correlator never retries; retry policy belongs to the caller.
func (a *Adapter) CallAPI(ctx context.Context, account, endpoint string, params map[string]any) (*onebot.StandardResponse, error) {
	state, ok := a.state(account)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, account)
	}
	self := onebot.Self{Platform: "onebot", UserID: state.account.BotID}

	state.mu.Lock()
	session := state.session
	if session == nil {
		state.mu.Unlock()
		resp := onebot.FailedResponse(onebot.RetCodeUnavailable,
			fmt.Sprintf("no live connection for account %s", account), self)
		return resp, fmt.Errorf("%w: %s", ErrConnectionUnavailable, account)
	}

	// Tokens are a per-account monotonic sequence, so uniqueness within the
	// in-flight window is structural rather than probabilistic.
	token := fmt.Sprintf("%s-%d", account, state.seq.Add(1))
	call := &pendingCall{
		createdAt: time.Now(),
		result:    make(chan map[string]any, 1),
	}
	state.pending[token] = call
	state.mu.Unlock()

	defer a.scheduleCleanup(state, token)

	request := onebot.Request{Action: endpoint, Params: params, Echo: token}
	if err := session.WriteJSON(request); err != nil {
		logger.ErrorCF("rpc", "Failed to write API request", map[string]interface{}{
			"account":  account,
			"endpoint": endpoint,
			"error":    err.Error(),
		})
		resp := onebot.FailedResponse(onebot.RetCodeUnavailable,
			fmt.Sprintf("write failed for %s: %v", endpoint, err), self)
		return resp, fmt.Errorf("%w: %s", ErrConnectionUnavailable, account)
	}
	logger.DebugCF("rpc", "API request sent", map[string]interface{}{
		"account":  account,
		"endpoint": endpoint,
		"echo":     token,
	})

	timeout := state.account.CallTimeout
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case raw := <-call.result:
		logger.DebugCF("rpc", "API response received", map[string]interface{}{
			"account":  account,
			"endpoint": endpoint,
			"echo":     token,
			"elapsed":  time.Since(call.createdAt).String(),
		})
		return onebot.NormalizeResponse(raw, self), nil
	case <-timer.C:
		// Claim the slot so a late response is dropped instead of resolved.
		call.once.Do(func() {})
		logger.ErrorCF("rpc", "API call timed out", map[string]interface{}{
			"account":  account,
			"endpoint": endpoint,
			"echo":     token,
			"timeout":  timeout.String(),
		})
		return onebot.TimeoutResponse(endpoint, account, self), nil
	case <-ctx.Done():
		call.once.Do(func() {})
		resp := onebot.FailedResponse(onebot.RetCodeUnavailable,
			fmt.Sprintf("call cancelled: %s (account %s)", endpoint, account), self)
		return resp, ctx.Err()
	}
}

// scheduleCleanup removes the pending entry after a grace delay instead of
// immediately, absorbing a response that arrives just as the timeout fires.
func (a *Adapter) scheduleCleanup(state *accountState, token string) {
	grace := a.cleanupGrace
	if grace <= 0 {
		state.mu.Lock()
		delete(state.pending, token)
		state.mu.Unlock()
		return
	}
	time.AfterFunc(grace, func() {
		state.mu.Lock()
		delete(state.pending, token)
		state.mu.Unlock()
	})
}

// resolvePending routes a response frame to its pending call.
func (a *Adapter) resolvePending(state *accountState, token string, raw map[string]any) {
	state.mu.Lock()
	call := state.pending[token]
	state.mu.Unlock()

	if call == nil {
		logger.DebugCF("rpc", "Response with no pending call, dropping", map[string]interface{}{
			"account": state.account.Name,
			"echo":    token,
		})
		return
	}
	if call.resolve(raw) {
		logger.DebugCF("rpc", "Resolved API call", map[string]interface{}{
			"account": state.account.Name,
			"echo":    token,
		})
	}
}

// PendingCalls reports the in-flight call count for one account.
func (a *Adapter) PendingCalls(account string) int {
	state, ok := a.state(account)
	if !ok {
		return 0
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	return len(state.pending)
}
