package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/websocket"
)

func startTestServer(t *testing.T, dbPath string) *Server {
	t.Helper()
	if dbPath == "" {
		dbPath = filepath.Join(t.TempDir(), "relay.db")
	}
	server, err := NewServer(&Config{Addr: "127.0.0.1:0", DBPath: dbPath})
	if err != nil {
		t.Fatalf("NewServer() failed: %v", err)
	}
	if err := server.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	return server
}

func put(t *testing.T, server *Server, tenant, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPut, "http://"+server.GetAddr()+"/api/documents/"+tenant, bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("NewRequest() failed: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT failed: %v", err)
	}
	resp.Body.Close()
	return resp
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 5s")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPutGet(t *testing.T) {
	server := startTestServer(t, "")
	defer server.Stop()

	resp, err := http.Get("http://" + server.GetAddr() + "/api/documents/cafe")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET before PUT status = %d, want 404", resp.StatusCode)
	}

	if resp := put(t, server, "cafe", `{"products":[],"lastUpdate":5}`); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("PUT status = %d, want 204", resp.StatusCode)
	}

	resp, err = http.Get("http://" + server.GetAddr() + "/api/documents/cafe")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	var doc struct {
		LastUpdate int64 `json:"lastUpdate"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if doc.LastUpdate != 5 {
		t.Errorf("lastUpdate = %d, want 5", doc.LastUpdate)
	}
}

func TestPut_Rejects(t *testing.T) {
	server := startTestServer(t, "")
	defer server.Stop()

	tests := []struct {
		name string
		body string
	}{
		{"not json", `{{`},
		{"no clock", `{"products":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if resp := put(t, server, "cafe", tt.body); resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestWebSocket_CurrentThenUpdates(t *testing.T) {
	server := startTestServer(t, "")
	defer server.Stop()

	put(t, server, "cafe", `{"lastUpdate":1}`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws/cafe", nil)
	if err != nil {
		t.Fatalf("Dial() failed: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	if string(data) != `{"lastUpdate":1}` {
		t.Errorf("initial document = %s", data)
	}

	waitFor(t, func() bool { return server.ClientCount() == 1 })

	put(t, server, "other", `{"lastUpdate":99}`)
	put(t, server, "cafe", `{"lastUpdate":2}`)

	_, data, err = conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	if string(data) != `{"lastUpdate":2}` {
		t.Errorf("update = %s, want lastUpdate 2 of tenant cafe", data)
	}
}

func TestPersistence(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "relay.db")

	server := startTestServer(t, dbPath)
	put(t, server, "cafe", `{"lastUpdate":7}`)
	if err := server.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}

	server = startTestServer(t, dbPath)
	defer server.Stop()

	data, err := server.Document("cafe")
	if err != nil {
		t.Fatalf("Document() failed: %v", err)
	}
	if string(data) != `{"lastUpdate":7}` {
		t.Errorf("document after restart = %s", data)
	}
}

func TestHealth(t *testing.T) {
	server := startTestServer(t, "")
	defer server.Stop()

	resp, err := http.Get("http://" + server.GetAddr() + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	defer resp.Body.Close()

	var health map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if health["status"] != "ok" {
		t.Errorf("status = %v, want ok", health["status"])
	}
}
