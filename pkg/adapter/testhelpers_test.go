package adapter

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/erisforge/onebridge/pkg/config"
	"github.com/erisforge/onebridge/pkg/onebot"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// fakeEmitter records emitted events for assertions.
type fakeEmitter struct {
	mu     sync.Mutex
	events []emittedEvent
}

type emittedEvent struct {
	account string
	event   *onebot.Event
}

func (f *fakeEmitter) Emit(account string, evt *onebot.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, emittedEvent{account: account, event: evt})
}

func (f *fakeEmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func (f *fakeEmitter) last() (emittedEvent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.events) == 0 {
		return emittedEvent{}, false
	}
	return f.events[len(f.events)-1], true
}

// newWSServer runs behavior for each accepted websocket connection.
func newWSServer(t *testing.T, behavior func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		behavior(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func testAccount(name, url string) config.Account {
	return config.Account{
		Name:              name,
		BotID:             "bot-" + name,
		Mode:              config.ModeClient,
		Enabled:           true,
		ClientURL:         url,
		ReconnectInterval: 20 * time.Millisecond,
		CallTimeout:       200 * time.Millisecond,
	}
}

// attachSession dials the test server and wires the connection in as the
// account's session, with the read loop running.
func attachSession(t *testing.T, a *Adapter, account, url string) *Session {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	state := a.states[account]
	session := newSession(conn, false)
	a.running.Store(true)
	if !a.installSession(state, session) {
		t.Fatal("session was not adopted")
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.readLoop(state, session)
		a.removeSession(state, session)
	}()
	t.Cleanup(session.Close)
	return session
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}
