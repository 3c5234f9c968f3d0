package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mothershiphq/mothership/pkg/protocol"
	"github.com/mothershiphq/mothership/pkg/types"
	"github.com/stretchr/testify/require"
)

func newTestAgent(t *testing.T) *Agent {
	t.Helper()
	root := t.TempDir()
	a, err := New(Config{
		ProjectID: "proj-1",
		RiftID:    "rift-1",
		Root:      root,
		ServerURL: "http://127.0.0.1:0",
		Token:     "tok",
	})
	require.NoError(t, err)
	t.Cleanup(func() { a.w.Close() })
	return a
}

func TestWatcherIgnoresHiddenAndBuildPaths(t *testing.T) {
	root := t.TempDir()
	w, err := NewWatcher(root, nil)
	require.NoError(t, err)
	defer w.Close()

	require.True(t, w.isIgnored(filepath.Join(root, ".git")))
	require.True(t, w.isIgnored(filepath.Join(root, ".hidden")))
	require.True(t, w.isIgnored(filepath.Join(root, "node_modules", "pkg.json")))
	require.True(t, w.isIgnored(filepath.Join(root, "target", "out.bin")))
	require.False(t, w.isIgnored(filepath.Join(root, "src", "main.go")))
}

func TestWatcherHonorsExtraIgnore(t *testing.T) {
	root := t.TempDir()
	w, err := NewWatcher(root, []string{"vendor/"})
	require.NoError(t, err)
	defer w.Close()

	require.True(t, w.isIgnored(filepath.Join(root, "vendor", "lib.go")))
}

func TestHandleFileEventFirstObservationSendsFullContent(t *testing.T) {
	a := newTestAgent(t)

	path := filepath.Join(a.cfg.Root, "hello.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello\n"), 0o644))

	a.handleFileEvent(FileEvent{Path: path, RelPath: "hello.txt"})

	select {
	case env := <-a.conn.outgoing:
		require.Equal(t, protocol.TypeFileChanged, env.Type)
		var payload protocol.FileChanged
		require.NoError(t, json.Unmarshal(env.Data, &payload))
		require.Equal(t, "hello\n", payload.Content)
	case <-time.After(time.Second):
		t.Fatal("expected a FileChanged message")
	}
}

func TestHandleFileEventSecondObservationSendsDiff(t *testing.T) {
	a := newTestAgent(t)
	path := filepath.Join(a.cfg.Root, "hello.txt")

	require.NoError(t, os.WriteFile(path, []byte("line one\n"), 0o644))
	a.handleFileEvent(FileEvent{Path: path, RelPath: "hello.txt"})
	<-a.conn.outgoing // drain the initial FullContent send

	require.NoError(t, os.WriteFile(path, []byte("line one\nline two\n"), 0o644))
	a.handleFileEvent(FileEvent{Path: path, RelPath: "hello.txt"})

	select {
	case env := <-a.conn.outgoing:
		require.Equal(t, protocol.TypeFileDiffChanged, env.Type)
		var payload protocol.FileDiffChanged
		require.NoError(t, json.Unmarshal(env.Data, &payload))
		require.Equal(t, "hello.txt", payload.Path)
	case <-time.After(time.Second):
		t.Fatal("expected a FileDiffChanged message")
	}
}

func TestLoopSuppressionDropsEchoedServerWrite(t *testing.T) {
	a := newTestAgent(t)
	a.markServerWrite("config.yaml")

	require.True(t, a.isSuppressed("config.yaml"))
	require.False(t, a.isSuppressed("config.yaml"), "suppression flag must clear after being consumed once")
}

func TestLoopSuppressionExpiresAfterWindow(t *testing.T) {
	a := newTestAgent(t)
	a.mu.Lock()
	a.serverWriting["config.yaml"] = time.Now().Add(-serverWriteSuppressWindow * 2)
	a.mu.Unlock()

	require.False(t, a.isSuppressed("config.yaml"))
}

func TestApplyFullContentWritesFileAndMarksSuppression(t *testing.T) {
	a := newTestAgent(t)
	a.applyFullContent("nested/dir/file.txt", "server content\n")

	data, err := os.ReadFile(filepath.Join(a.cfg.Root, "nested", "dir", "file.txt"))
	require.NoError(t, err)
	require.Equal(t, "server content\n", string(data))
	require.True(t, a.isSuppressed("nested/dir/file.txt"))
}

func TestApplyDiffFallsBackToRequestLatestContentOnMismatch(t *testing.T) {
	a := newTestAgent(t)
	a.mu.Lock()
	a.lastContent["out.txt"] = "one line\n"
	a.mu.Unlock()

	// An OpKeep walking far past the one line actually on record.
	badDiff := types.FileDiff{Kind: types.DiffLine, Ops: []types.LineOp{{Kind: types.OpKeep, N: 100}}}
	a.applyDiff("out.txt", badDiff)

	select {
	case env := <-a.conn.outgoing:
		require.Equal(t, protocol.TypeRequestLatestContent, env.Type)
	case <-time.After(time.Second):
		t.Fatal("expected a RequestLatestContent fallback")
	}
}

func TestHandleInboundSyncDataAppliesFilesAndCheckpoint(t *testing.T) {
	a := newTestAgent(t)

	data, err := json.Marshal(protocol.SyncData{
		RiftID:       "rift-1",
		CheckpointID: "cp-42",
		Files: []protocol.SyncFile{
			{Path: "a.txt", Content: "A"},
			{Path: "b.txt", Content: "B"},
		},
	})
	require.NoError(t, err)

	a.handleInbound(protocol.Envelope{Type: protocol.TypeSyncData, Data: data})

	gotA, err := os.ReadFile(filepath.Join(a.cfg.Root, "a.txt"))
	require.NoError(t, err)
	require.Equal(t, "A", string(gotA))

	a.conn.mu.Lock()
	last := a.conn.lastCheckpoint
	a.conn.mu.Unlock()
	require.Equal(t, "cp-42", last)
}

// TestConnectionJoinsRiftOnConnect spins up a real WebSocket server
// and checks the Connection dials it, sends JoinRift with the last
// known checkpoint, and surfaces an inbound frame through onMessage.
func TestConnectionJoinsRiftOnConnect(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan protocol.Envelope, 4)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env protocol.Envelope
		if json.Unmarshal(data, &env) == nil {
			received <- env
		}

		push, _ := protocol.Encode(protocol.TypeFileUpdate, protocol.FileUpdate{RiftID: "rift-1", Path: "ping.txt", Content: "pong"})
		conn.WriteMessage(websocket.TextMessage, push)

		time.Sleep(100 * time.Millisecond)
	}))
	defer srv.Close()

	var receivedMu sync.Mutex
	var received2 protocol.Envelope
	done := make(chan struct{}, 1)
	conn := NewConnection(srv.URL, "rift-1", "tok", func(env protocol.Envelope) {
		receivedMu.Lock()
		received2 = env
		receivedMu.Unlock()
		select {
		case done <- struct{}{}:
		default:
		}
	})
	conn.SetLastCheckpoint("cp-1")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go conn.Run(ctx)

	select {
	case env := <-received:
		require.Equal(t, protocol.TypeJoinRift, env.Type)
		var payload protocol.JoinRift
		require.NoError(t, json.Unmarshal(env.Data, &payload))
		require.Equal(t, "cp-1", payload.LastCheckpoint)
	case <-time.After(2 * time.Second):
		t.Fatal("server never received JoinRift")
	}

	select {
	case <-done:
		receivedMu.Lock()
		require.Equal(t, protocol.TypeFileUpdate, received2.Type)
		receivedMu.Unlock()
	case <-time.After(2 * time.Second):
		t.Fatal("client never delivered inbound FileUpdate")
	}
}
