package speech

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
	"google.golang.org/api/iterator"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// newWSServer starts a WebSocket test server and returns its ws:// URL.
func newWSServer(t *testing.T, handler func(conn *websocket.Conn, r *http.Request)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		handler(conn, r)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func writeWire(t *testing.T, conn *websocket.Conn, msg *wireMessage) {
	t.Helper()
	data, err := msgpack.Marshal(msg)
	if err != nil {
		t.Errorf("marshal: %v", err)
		return
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		t.Errorf("write: %v", err)
	}
}

func readWire(t *testing.T, conn *websocket.Conn) *wireMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Errorf("read: %v", err)
		return &wireMessage{}
	}
	var msg wireMessage
	if err := msgpack.Unmarshal(data, &msg); err != nil {
		t.Errorf("unmarshal: %v", err)
	}
	return &msg
}

func TestSTTClientTranscriptStream(t *testing.T) {
	gotAudio := make(chan []float32, 1)
	url := newWSServer(t, func(conn *websocket.Conn, r *http.Request) {
		writeWire(t, conn, &wireMessage{Type: msgReady})
		msg := readWire(t, conn)
		if msg.Type != msgAudio {
			t.Errorf("first uplink frame = %q, want %q", msg.Type, msgAudio)
		}
		gotAudio <- msg.PCM

		writeWire(t, conn, &wireMessage{Type: msgWord, Text: "hello", StartTime: 0.5})
		writeWire(t, conn, &wireMessage{Type: msgWord, Text: "there", StartTime: 0.9})
		writeWire(t, conn, &wireMessage{Type: msgEndTurn})

		// Hold the connection open until the client hangs up.
		conn.ReadMessage()
	})

	client, err := DialSTT(context.Background(), url)
	if err != nil {
		t.Fatalf("DialSTT: %v", err)
	}
	defer client.Close()

	if err := client.SendPCM(context.Background(), []int16{0, 16384, -16384}); err != nil {
		t.Fatalf("SendPCM: %v", err)
	}
	pcm := <-gotAudio
	if len(pcm) != 3 {
		t.Fatalf("uplink samples = %d, want 3", len(pcm))
	}
	if pcm[1] < 0.49 || pcm[1] > 0.51 {
		t.Errorf("uplink sample = %v, want ~0.5", pcm[1])
	}

	want := []TranscriptEvent{
		{Kind: TranscriptWord, Text: "hello", StartTime: 0.5},
		{Kind: TranscriptWord, Text: "there", StartTime: 0.9},
		{Kind: TranscriptEndTurn},
	}
	for i, w := range want {
		ev, err := client.Next()
		if err != nil {
			t.Fatalf("Next #%d: %v", i, err)
		}
		if *ev != w {
			t.Errorf("event #%d = %+v, want %+v", i, *ev, w)
		}
	}
}

func TestSTTClientSkipsPauseFrames(t *testing.T) {
	url := newWSServer(t, func(conn *websocket.Conn, r *http.Request) {
		writeWire(t, conn, &wireMessage{Type: msgReady})
		writeWire(t, conn, &wireMessage{Type: msgWord, Text: "hello", StartTime: 0.5})
		writeWire(t, conn, &wireMessage{Type: msgPause})
		writeWire(t, conn, &wireMessage{Type: msgEndTurn})
		conn.ReadMessage()
	})

	client, err := DialSTT(context.Background(), url)
	if err != nil {
		t.Fatalf("DialSTT: %v", err)
	}
	defer client.Close()

	want := []TranscriptEvent{
		{Kind: TranscriptWord, Text: "hello", StartTime: 0.5},
		{Kind: TranscriptEndTurn},
	}
	for i, w := range want {
		ev, err := client.Next()
		if err != nil {
			t.Fatalf("Next #%d: %v", i, err)
		}
		if *ev != w {
			t.Errorf("event #%d = %+v, want %+v", i, *ev, w)
		}
	}
}

func TestSTTClientCloseEndsStream(t *testing.T) {
	url := newWSServer(t, func(conn *websocket.Conn, r *http.Request) {
		writeWire(t, conn, &wireMessage{Type: msgReady})
		conn.ReadMessage()
	})

	client, err := DialSTT(context.Background(), url)
	if err != nil {
		t.Fatalf("DialSTT: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	for {
		_, err := client.Next()
		if err == iterator.Done {
			return
		}
		if err != nil {
			t.Fatalf("Next after Close: %v, want iterator.Done", err)
		}
	}
}

func TestSTTClientRemoteFault(t *testing.T) {
	url := newWSServer(t, func(conn *websocket.Conn, r *http.Request) {
		writeWire(t, conn, &wireMessage{Type: msgError, Message: "model crashed"})
	})

	client, err := DialSTT(context.Background(), url)
	if err != nil {
		t.Fatalf("DialSTT: %v", err)
	}
	defer client.Close()

	_, err = client.Next()
	var fault *StreamFaultError
	if !errors.As(err, &fault) {
		t.Fatalf("Next error = %v, want *StreamFaultError", err)
	}
	if fault.Service != "stt" {
		t.Errorf("fault service = %q, want stt", fault.Service)
	}
	if !strings.Contains(fault.Error(), "model crashed") {
		t.Errorf("fault message %q does not carry remote detail", fault.Error())
	}
}

func TestSTTClientDroppedConnectionFault(t *testing.T) {
	url := newWSServer(t, func(conn *websocket.Conn, r *http.Request) {
		writeWire(t, conn, &wireMessage{Type: msgReady})
		// Drop the connection without a close handshake.
		conn.Close()
	})

	client, err := DialSTT(context.Background(), url)
	if err != nil {
		t.Fatalf("DialSTT: %v", err)
	}
	defer client.Close()

	for {
		_, err := client.Next()
		if err == nil {
			continue
		}
		var fault *StreamFaultError
		if !errors.As(err, &fault) {
			t.Fatalf("Next error = %v, want *StreamFaultError", err)
		}
		return
	}
}

func TestDialSTTUnavailable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := DialSTT(ctx, "ws://127.0.0.1:1/stt")
	var unavailable *UnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("DialSTT error = %v, want *UnavailableError", err)
	}
	if unavailable.Service != "stt" {
		t.Errorf("service = %q, want stt", unavailable.Service)
	}
}
