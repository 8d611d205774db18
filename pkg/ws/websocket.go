// Package ws wraps a gorilla websocket connection with buffered read/write
// pumps so callers never touch the connection concurrently.
package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var ErrClosed = errors.New("ws is closed")

var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Message struct {
	MsgType int
	Message []byte
}

type Client struct {
	conn *websocket.Conn

	writeChan chan *Message
	readChan  chan *Message
	done      chan struct{}

	closed bool
	lock   sync.Mutex
}

// NewClient wraps an established connection. The returned done channel closes
// once either pump dies, which is how callers detect a broken or closed peer.
func NewClient(conn *websocket.Conn) (client *Client, done chan struct{}) {
	client = &Client{
		conn: conn,

		writeChan: make(chan *Message, 5),
		readChan:  make(chan *Message),
	}

	metrics.Connections.Inc()

	done = make(chan struct{})
	client.done = done

	go func() {
		defer close(client.readChan)
		defer client.Close()

		for {
			msg := &Message{}
			var err error

			msg.MsgType, msg.Message, err = conn.ReadMessage()
			if err != nil {
				break
			}

			client.readChan <- msg
		}
	}()

	go func() {
		defer close(done)
		defer func() {
			for range client.writeChan {
			}
		}()

		for msg := range client.writeChan {
			if err := conn.WriteMessage(msg.MsgType, msg.Message); err != nil {
				metrics.WriteErrors.Inc()
				break
			}
		}
	}()

	return client, done
}

// Dial connects to a websocket endpoint and wraps the connection.
func Dial(ctx context.Context, url string) (*Client, chan struct{}, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, nil, err
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	client, done := NewClient(conn)

	return client, done, nil
}

// Close stops accepting writes, gives the write pump a bounded window to
// flush already-queued messages, then drops the connection.
func (ws *Client) Close() error {
	ws.lock.Lock()
	if ws.closed {
		ws.lock.Unlock()

		return nil
	}

	ws.closed = true
	close(ws.writeChan)
	ws.lock.Unlock()

	metrics.Connections.Dec()

	select {
	case <-ws.done:
	case <-time.After(time.Second):
	}

	return ws.conn.Close()
}

func (ws *Client) Send(msg *Message) error {
	ws.lock.Lock()
	defer ws.lock.Unlock()

	if ws.closed {
		return ErrClosed
	}

	ws.writeChan <- msg

	return nil
}

// Read blocks until a message arrives, the peer closes, or ctx is done.
func (ws *Client) Read(ctx context.Context) (*Message, error) {
	select {
	case msg, ok := <-ws.readChan:
		if !ok {
			return nil, ErrClosed
		}

		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// DrainRead discards incoming messages so the read pump keeps running and
// peer closure is still detected. Use it when no client input is expected.
func (ws *Client) DrainRead(ctx context.Context) {
	for {
		if _, err := ws.Read(ctx); err != nil {
			return
		}
	}
}
