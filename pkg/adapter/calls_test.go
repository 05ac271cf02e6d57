package adapter

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erisforge/onebridge/pkg/config"
	"github.com/erisforge/onebridge/pkg/onebot"
)

func TestCallAPIResolvesByEcho(t *testing.T) {
	srv := newWSServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		for {
			var req onebot.Request
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			conn.WriteJSON(map[string]any{
				"status":  "ok",
				"retcode": 0,
				"data":    map[string]any{"message_id": 4242},
				"echo":    req.Echo,
			})
		}
	})

	registry := map[string]config.Account{"default": testAccount("default", wsURL(srv))}
	a := New(registry, &fakeEmitter{}, nil)
	a.cleanupGrace = 20 * time.Millisecond
	attachSession(t, a, "default", wsURL(srv))

	resp, err := a.CallAPI(context.Background(), "default", "send_msg", map[string]any{
		"message_type": "private",
		"user_id":      "1",
		"message":      []onebot.Segment{onebot.TextSegment("hi")},
	})
	require.NoError(t, err)
	assert.Equal(t, onebot.StatusOK, resp.Status)
	assert.Equal(t, int64(0), resp.RetCode)
	assert.Equal(t, "4242", resp.MessageID)
	assert.Equal(t, "bot-default", resp.Self.UserID)
	assert.NotNil(t, resp.Raw)

	waitFor(t, time.Second, func() bool {
		return a.PendingCalls("default") == 0
	}, "pending call not cleaned up after grace period")
}

func TestCallAPITimeout(t *testing.T) {
	srv := newWSServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		for {
			// Swallow requests without ever answering.
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	account := testAccount("default", wsURL(srv))
	account.CallTimeout = 50 * time.Millisecond
	a := New(map[string]config.Account{"default": account}, &fakeEmitter{}, nil)
	a.cleanupGrace = 20 * time.Millisecond
	attachSession(t, a, "default", wsURL(srv))

	resp, err := a.CallAPI(context.Background(), "default", "send_msg", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, onebot.StatusFailed, resp.Status)
	assert.Equal(t, int64(onebot.RetCodeTimeout), resp.RetCode)
	assert.Contains(t, resp.Message, "send_msg")
	assert.Contains(t, resp.Message, "default")
	assert.Nil(t, resp.Raw)

	waitFor(t, time.Second, func() bool {
		return a.PendingCalls("default") == 0
	}, "timed-out call not cleaned up after grace period")
}

func TestCallAPINoSession(t *testing.T) {
	registry := map[string]config.Account{"default": testAccount("default", "ws://127.0.0.1:1")}
	a := New(registry, &fakeEmitter{}, nil)

	resp, err := a.CallAPI(context.Background(), "default", "send_msg", nil)
	require.ErrorIs(t, err, ErrConnectionUnavailable)
	require.NotNil(t, resp)
	assert.Equal(t, onebot.StatusFailed, resp.Status)
	assert.Equal(t, int64(onebot.RetCodeUnavailable), resp.RetCode)
}

func TestCallAPIUnknownAccount(t *testing.T) {
	a := New(map[string]config.Account{}, &fakeEmitter{}, nil)

	_, err := a.CallAPI(context.Background(), "ghost", "send_msg", nil)
	require.ErrorIs(t, err, ErrUnknownAccount)
}

func TestConcurrentCallsGetDistinctTokens(t *testing.T) {
	var seenMu sync.Mutex
	seen := make([]string, 0, 2)

	srv := newWSServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		for {
			var req onebot.Request
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			seenMu.Lock()
			seen = append(seen, req.Echo)
			seenMu.Unlock()
			conn.WriteJSON(map[string]any{
				"status":  "ok",
				"retcode": 0,
				"data":    map[string]any{"message_id": req.Echo},
				"echo":    req.Echo,
			})
		}
	})

	registry := map[string]config.Account{"default": testAccount("default", wsURL(srv))}
	a := New(registry, &fakeEmitter{}, nil)
	a.cleanupGrace = 10 * time.Millisecond
	attachSession(t, a, "default", wsURL(srv))

	var wg sync.WaitGroup
	results := make([]*onebot.StandardResponse, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			results[slot], errs[slot] = a.CallAPI(context.Background(), "default", "get_status", nil)
		}(i)
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	require.NotNil(t, results[0])
	require.NotNil(t, results[1])
	assert.NotEqual(t, results[0].MessageID, results[1].MessageID)
	for _, resp := range results {
		assert.True(t, strings.HasPrefix(resp.MessageID, "default-"),
			"token %q should carry the account prefix", resp.MessageID)
	}

	seenMu.Lock()
	defer seenMu.Unlock()
	require.Len(t, seen, 2)
	assert.NotEqual(t, seen[0], seen[1])
}

func TestLateResponseAfterTimeoutIsDropped(t *testing.T) {
	release := make(chan struct{})
	srv := newWSServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		var req onebot.Request
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		<-release
		conn.WriteJSON(map[string]any{
			"status":  "ok",
			"retcode": 0,
			"echo":    req.Echo,
		})
		// Keep the connection open long enough for the frame to land.
		time.Sleep(100 * time.Millisecond)
	})

	account := testAccount("default", wsURL(srv))
	account.CallTimeout = 30 * time.Millisecond
	emitter := &fakeEmitter{}
	a := New(map[string]config.Account{"default": account}, emitter, nil)
	a.cleanupGrace = 200 * time.Millisecond
	attachSession(t, a, "default", wsURL(srv))

	resp, err := a.CallAPI(context.Background(), "default", "send_msg", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(onebot.RetCodeTimeout), resp.RetCode)

	// Let the late response arrive; it must neither crash the read loop
	// nor surface as an event.
	close(release)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, emitter.count())
}

func TestResolvePendingUnknownEcho(t *testing.T) {
	registry := map[string]config.Account{"default": testAccount("default", "ws://127.0.0.1:1")}
	a := New(registry, &fakeEmitter{}, nil)

	// A response frame for a token we never issued is logged and dropped.
	frame, _ := json.Marshal(map[string]any{"echo": "default-99", "retcode": 0})
	a.HandleFrame("default", frame)
	assert.Equal(t, 0, a.PendingCalls("default"))
}
