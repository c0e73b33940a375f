package speech

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/voicewire/voicewire/pkg/buffer"
)

// TranscriptEventKind discriminates STT results.
type TranscriptEventKind int

const (
	// TranscriptWord is one recognized word with its stream offset.
	TranscriptWord TranscriptEventKind = iota

	// TranscriptEndTurn marks the end of a speech turn: the service's
	// voice-activity detection decided the speaker is done.
	TranscriptEndTurn
)

// TranscriptEvent is one result from the STT service.
type TranscriptEvent struct {
	Kind      TranscriptEventKind
	Text      string
	StartTime float64
}

// STTClient is a streaming connection to the speech-to-text service.
// PCM goes up, transcript events come down. One instance per session.
type STTClient struct {
	conn   *websocket.Conn
	events *buffer.Queue[*TranscriptEvent]

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

// sttDialTimeout bounds the WebSocket handshake to the STT service.
const sttDialTimeout = 10 * time.Second

// DialSTT connects to the STT service and waits for its Ready frame.
// Connection or handshake failure yields an *UnavailableError.
func DialSTT(ctx context.Context, url string) (*STTClient, error) {
	dialer := websocket.Dialer{HandshakeTimeout: sttDialTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, &UnavailableError{Service: "stt", Err: err}
	}

	c := &STTClient{
		conn:   conn,
		events: buffer.NewQueue[*TranscriptEvent](256),
		closed: make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// SendPCM submits one frame of service-rate mono PCM for transcription.
func (c *STTClient) SendPCM(ctx context.Context, pcm []int16) error {
	data, err := msgpack.Marshal(&wireMessage{
		Type: msgAudio,
		PCM:  pcmToFloat32(pcm),
	})
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetWriteDeadline(deadline)
	}
	if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return &StreamFaultError{Service: "stt", Err: err}
	}
	return nil
}

// Next returns the next transcript event, blocking until one is available.
// Returns iterator.Done after a clean close, or a *StreamFaultError if the
// connection broke.
func (c *STTClient) Next() (*TranscriptEvent, error) {
	return c.events.Next()
}

// Close tears down the connection and ends the event stream.
func (c *STTClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
		c.events.CloseWrite()
	})
	return err
}

func (c *STTClient) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
				c.events.CloseWrite()
			default:
				c.events.CloseWithError(&StreamFaultError{Service: "stt", Err: err})
			}
			return
		}

		var msg wireMessage
		if err := msgpack.Unmarshal(data, &msg); err != nil {
			c.events.CloseWithError(&StreamFaultError{Service: "stt", Err: err})
			return
		}

		switch msg.Type {
		case msgReady:
			// Handshake acknowledgement, nothing to surface.
		case msgWord:
			c.events.Push(&TranscriptEvent{
				Kind:      TranscriptWord,
				Text:      msg.Text,
				StartTime: msg.StartTime,
			})
		case msgPause:
			// Voice-activity boundary. Turn ends are driven by EndTurn.
		case msgEndTurn:
			c.events.Push(&TranscriptEvent{Kind: TranscriptEndTurn})
		case msgError:
			c.events.CloseWithError(&StreamFaultError{
				Service: "stt",
				Err:     remoteError(msg.Message),
			})
			return
		}
	}
}
