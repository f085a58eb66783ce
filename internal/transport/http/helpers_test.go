package http

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomchat/internal/config"
	"github.com/vovakirdan/roomchat/internal/driver/memory"
	"github.com/vovakirdan/roomchat/internal/proto"
	"github.com/vovakirdan/roomchat/internal/store"
	"github.com/vovakirdan/roomchat/internal/utils"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.ReadHeaderTimeout = time.Second
	cfg.ShutdownTimeout = time.Second
	return cfg
}

// newTestChat creates a chat store whose allow-list holds grants (room id to user ids).
func newTestChat(t *testing.T, grants map[string][]string) *memory.Store {
	t.Helper()

	perms := store.NewAllowList()
	if err := store.Seed(context.Background(), perms, grants); err != nil {
		t.Fatalf("seed permissions: %v", err)
	}
	return memory.NewStore(
		memory.WithPermissions(perms),
		memory.WithIDGenerator(&utils.SequenceIDs{Prefix: "evt"}),
	)
}

func startTestServer(t *testing.T, b Backend, cfg config.Config) *httptest.Server {
	t.Helper()

	disabledLogger := zerolog.New(nil)
	server := NewServer(b, &cfg, &disabledLogger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func wsURL(ts *httptest.Server) string {
	return strings.Replace(ts.URL, "http", "ws", 1) + "/ws"
}

func dialWS(t *testing.T, ctx context.Context, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, wsURL(ts), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func sendFrame(t *testing.T, ctx context.Context, conn *websocket.Conn, typ, id string, data any) {
	t.Helper()
	in, err := proto.NewInbound(typ, id, data)
	if err != nil {
		t.Fatalf("build %s: %v", typ, err)
	}
	raw, err := proto.Marshal(in)
	if err != nil {
		t.Fatalf("marshal %s: %v", typ, err)
	}
	if err := conn.Write(ctx, websocket.MessageText, raw); err != nil {
		t.Fatalf("send %s: %v", typ, err)
	}
}

func readFrame(t *testing.T, ctx context.Context, conn *websocket.Conn) proto.Outbound {
	t.Helper()
	_, raw, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read outbound: %v", err)
	}
	var out proto.Outbound
	if err := proto.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode outbound: %v", err)
	}
	return out
}

// hello greets the server as userID and consumes the welcome.
func hello(t *testing.T, ctx context.Context, conn *websocket.Conn, userID string) {
	t.Helper()
	sendFrame(t, ctx, conn, proto.InboundTypeHello, "hello", proto.HelloData{User: proto.UserData{ID: userID}})
	if out := readFrame(t, ctx, conn); out.Type != proto.OutboundTypeWelcome {
		t.Fatalf("expected welcome, got %+v", out)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
