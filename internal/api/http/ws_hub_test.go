package apihttp

import (
	"encoding/json"
	"errors"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"magnetstream/internal/domain"
)

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	resp.Body.Close()
	return conn
}

func readWSMessage(t *testing.T, conn *websocket.Conn, timeout time.Duration) wsMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read ws message: %v", err)
	}
	var msg wsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal ws message: %v (raw: %s)", err, data)
	}
	return msg
}

func decodeSnapshots(t *testing.T, raw interface{}) []domain.Snapshot {
	t.Helper()
	data, err := json.Marshal(raw)
	if err != nil {
		t.Fatal(err)
	}
	var snaps []domain.Snapshot
	if err := json.Unmarshal(data, &snaps); err != nil {
		t.Fatalf("decode snapshots: %v", err)
	}
	return snaps
}

func TestWSCatchUpOnConnect(t *testing.T) {
	env := newTestEnv(t)
	existing := env.store.Create()

	httpSrv := httptest.NewServer(env.server)
	defer httpSrv.Close()

	conn := dialWS(t, httpSrv)
	defer conn.Close()

	msg := readWSMessage(t, conn, 2*time.Second)
	if msg.Type != "downloads-list" {
		t.Fatalf("first message type = %q, want downloads-list", msg.Type)
	}
	snaps := decodeSnapshots(t, msg.Data)
	if len(snaps) != 1 || snaps[0].ID != existing.ID {
		t.Fatalf("catch-up snapshots = %+v", snaps)
	}
}

func TestWSReceivesSessionUpdates(t *testing.T) {
	env := newTestEnv(t)

	httpSrv := httptest.NewServer(env.server)
	defer httpSrv.Close()

	conn := dialWS(t, httpSrv)
	defer conn.Close()

	// Drain the catch-up message first.
	first := readWSMessage(t, conn, 2*time.Second)
	if first.Type != "downloads-list" {
		t.Fatalf("first message type = %q", first.Type)
	}

	snap := env.store.Create()
	env.server.SessionUpdated(snap)

	msg := readWSMessage(t, conn, 2*time.Second)
	if msg.Type != "download-update" {
		t.Fatalf("message type = %q, want download-update", msg.Type)
	}

	data, _ := json.Marshal(msg.Data)
	var got domain.Snapshot
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.ID != snap.ID {
		t.Fatalf("update id = %q, want %q", got.ID, snap.ID)
	}
}

func TestWSConnectAfterShutdownClosesConnection(t *testing.T) {
	env := newTestEnv(t)

	httpSrv := httptest.NewServer(env.server)
	defer httpSrv.Close()

	env.server.Close()

	url := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		// Upgrade refused outright is also fine; nothing was left hanging.
		return
	}
	resp.Body.Close()
	defer conn.Close()

	// A stopped hub can no longer accept registrations; the handler must
	// close the connection instead of blocking on it. A deadline timeout
	// here means the connection was left open.
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	if err == nil {
		t.Fatal("read succeeded on a connection made after shutdown")
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		t.Fatal("connection stayed open after shutdown")
	}
}

func TestWSMultipleClientsAllReceiveBroadcast(t *testing.T) {
	env := newTestEnv(t)

	httpSrv := httptest.NewServer(env.server)
	defer httpSrv.Close()

	connA := dialWS(t, httpSrv)
	defer connA.Close()
	connB := dialWS(t, httpSrv)
	defer connB.Close()

	readWSMessage(t, connA, 2*time.Second)
	readWSMessage(t, connB, 2*time.Second)

	snap := env.store.Create()
	env.server.SessionUpdated(snap)

	for _, conn := range []*websocket.Conn{connA, connB} {
		msg := readWSMessage(t, conn, 2*time.Second)
		if msg.Type != "download-update" {
			t.Fatalf("type = %q", msg.Type)
		}
	}
}
