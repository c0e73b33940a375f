package speech

import (
	"context"
	"errors"
	neturl "net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/voicewire/voicewire/pkg/buffer"
)

// remoteError wraps an error message reported by a service in its Error
// frame.
func remoteError(message string) error {
	if message == "" {
		message = "unspecified remote error"
	}
	return errors.New(message)
}

// AudioChunk is one chunk of synthesized service-rate mono PCM.
type AudioChunk struct {
	PCM []int16
}

// TTSClient is a streaming connection to the text-to-speech service: text
// deltas go up, PCM chunks come down. The session dials one per response
// cycle; the voice is fixed at dial time.
type TTSClient struct {
	conn   *websocket.Conn
	chunks *buffer.Queue[*AudioChunk]

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

// ttsDialTimeout bounds the WebSocket handshake to the TTS service.
const ttsDialTimeout = 10 * time.Second

// DialTTS connects to the TTS service for one synthesis stream with the
// given voice. Connection failure yields an *UnavailableError.
func DialTTS(ctx context.Context, url, voice string) (*TTSClient, error) {
	if voice != "" {
		sep := "?"
		if strings.Contains(url, "?") {
			sep = "&"
		}
		url += sep + "voice=" + neturl.QueryEscape(voice)
	}

	dialer := websocket.Dialer{HandshakeTimeout: ttsDialTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, &UnavailableError{Service: "tts", Err: err}
	}

	c := &TTSClient{
		conn:   conn,
		chunks: buffer.NewQueue[*AudioChunk](256),
		closed: make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// SendText submits one text delta for synthesis.
func (c *TTSClient) SendText(ctx context.Context, text string) error {
	return c.send(ctx, &wireMessage{Type: msgText, Text: text})
}

// CloseSend tells the service no more text is coming. Remaining audio
// drains through Next until the service's End frame.
func (c *TTSClient) CloseSend(ctx context.Context) error {
	return c.send(ctx, &wireMessage{Type: msgEos})
}

func (c *TTSClient) send(ctx context.Context, msg *wireMessage) error {
	data, err := msgpack.Marshal(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetWriteDeadline(deadline)
	}
	if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return &StreamFaultError{Service: "tts", Err: err}
	}
	return nil
}

// Next returns the next synthesized chunk, blocking until one is
// available. Returns iterator.Done once the stream has drained after the
// service's End frame, or a *StreamFaultError if the connection broke.
func (c *TTSClient) Next() (*AudioChunk, error) {
	return c.chunks.Next()
}

// Close abandons the stream and tears down the connection. Used both for
// normal teardown after Next returned iterator.Done and to cancel
// synthesis when a response is interrupted.
func (c *TTSClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
		c.chunks.CloseWrite()
	})
	return err
}

func (c *TTSClient) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
				c.chunks.CloseWrite()
			default:
				c.chunks.CloseWithError(&StreamFaultError{Service: "tts", Err: err})
			}
			return
		}

		var msg wireMessage
		if err := msgpack.Unmarshal(data, &msg); err != nil {
			c.chunks.CloseWithError(&StreamFaultError{Service: "tts", Err: err})
			return
		}

		switch msg.Type {
		case msgReady:
			// Handshake acknowledgement, nothing to surface.
		case msgAudio:
			c.chunks.Push(&AudioChunk{PCM: float32ToPCM(msg.PCM)})
		case msgEnd:
			c.chunks.CloseWrite()
			return
		case msgError:
			c.chunks.CloseWithError(&StreamFaultError{
				Service: "tts",
				Err:     remoteError(msg.Message),
			})
			return
		}
	}
}
