package server

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"deadsongs/logger"
	"deadsongs/model"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

var errClientClosed = errors.New("websocket client closed")

// clientMessage is anything the browser sends. Player commands carry
// songId or value; media reports carry the token of the load they belong to.
type clientMessage struct {
	Type    string  `json:"type"`
	Token   uint64  `json:"token,omitempty"`
	SongID  int64   `json:"songId,omitempty"`
	Value   float64 `json:"value,omitempty"`
	Query   string  `json:"query,omitempty"`
	Message string  `json:"message,omitempty"`
}

type serverMessage struct {
	Type      string               `json:"type"`
	SessionID string               `json:"sessionId,omitempty"`
	Token     uint64               `json:"token,omitempty"`
	URL       string               `json:"url,omitempty"`
	Value     *float64             `json:"value,omitempty"`
	State     *model.PlaybackState `json:"state,omitempty"`
	Search    *model.SearchResult  `json:"search,omitempty"`
	Like      *model.LikeResult    `json:"like,omitempty"`
	SongIDs   []int64              `json:"songIds,omitempty"`
	Error     *errorBody           `json:"error,omitempty"`
	Timestamp int64                `json:"timestamp"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

func newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
}

func (c *wsClient) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		c.conn.Close()
	})
}

// Send queues msg. It fails once the client is closed or too far behind.
func (c *wsClient) Send(msg serverMessage) error {
	msg.Timestamp = time.Now().UnixMilli()
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return errClientClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return errClientClosed
	default:
		logger.Warn("websocket send buffer full, dropping message", logger.String("type", msg.Type))
		return errors.New("websocket send buffer full")
	}
}

// ReadPump delivers decoded messages to handle until the connection drops.
func (c *wsClient) ReadPump(handle func(msg clientMessage)) {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket read error", logger.ErrorField(err))
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warn("invalid websocket message", logger.ErrorField(err))
			continue
		}
		handle(msg)
	}
}

// WritePump writes one JSON message per frame and keeps the connection
// alive with pings.
func (c *wsClient) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
