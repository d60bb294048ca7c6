package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/delaneyj/cdom/cdom"
)

// frame is one pushed value. Seq counts deliveries on the connection.
type frame struct {
	ID     string `json:"id"`
	Seq    int    `json:"seq"`
	Value  any    `json:"value"`
	Marker bool   `json:"marker,omitempty"`
	Error  string `json:"error,omitempty"`
}

type conn struct {
	id     uuid.UUID
	ws     *websocket.Conn
	sys    *cdom.System
	frames chan []byte
	done   chan struct{}
	once   sync.Once
	sub    *cdom.Subscriber
	seq    int
}

func (c *conn) close() {
	c.once.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

// push runs on the System's goroutine. It never blocks: a consumer that
// falls a full buffer behind is disconnected.
func (c *conn) push(v any) {
	c.seq++
	v = cdom.Unwrap(v)
	raw, err := json.Marshal(frame{ID: c.id.String(), Seq: c.seq, Value: v, Marker: cdom.IsMarker(v)})
	if err != nil {
		raw, _ = json.Marshal(frame{ID: c.id.String(), Seq: c.seq, Error: err.Error()})
	}
	select {
	case c.frames <- raw:
	case <-c.done:
	default:
		c.sys.Logger().Warn("dropping websocket subscriber", "conn", c.id, "err", errSlowConsumer)
		go c.close()
	}
}

// subscribe upgrades the request and streams every change of ?expr= or the
// JSON descriptor in ?descriptor= until the client goes away.
func (s *Server) subscribe(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	expr, rawDesc := q.Get("expr"), q.Get("descriptor")
	var desc any
	if expr == "" {
		if rawDesc == "" {
			s.writeError(w, http.StatusBadRequest, ErrEmptyRequest)
			return
		}
		if err := json.Unmarshal([]byte(rawDesc), &desc); err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		desc = cdom.Normalize(desc)
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade", "err", err)
		return
	}
	c := &conn{
		id:     uuid.New(),
		ws:     ws,
		sys:    s.sys,
		frames: make(chan []byte, frameBufferDepth),
		done:   make(chan struct{}),
	}

	var bindErr error
	err = s.sys.Do(r.Context(), func() {
		if expr != "" {
			c.sub, bindErr = s.sys.BindExpression(expr, nil, c.push)
			return
		}
		c.sub = s.sys.BindStructural(desc, nil, c.push)
	})
	if err != nil {
		c.close()
		return
	}
	if bindErr != nil {
		s.logger.Debug("websocket expression", "conn", c.id, "expr", expr, "err", bindErr)
	}

	s.mu.Lock()
	s.conns[c.id] = c
	s.mu.Unlock()
	s.logger.Debug("websocket subscribed", "conn", c.id)

	go s.readLoop(c)
	s.writeLoop(c)

	s.mu.Lock()
	delete(s.conns, c.id)
	s.mu.Unlock()
	s.sys.Post(c.sub.Dispose)
	s.logger.Debug("websocket closed", "conn", c.id)
}

// readLoop discards client messages; its only job is noticing the close.
func (s *Server) readLoop(c *conn) {
	defer c.close()
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writeLoop(c *conn) {
	defer c.close()
	for {
		select {
		case <-c.done:
			return
		case raw := <-c.frames:
			c.ws.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, raw); err != nil {
				s.logger.Debug("websocket write", "conn", c.id, "err", err)
				return
			}
		}
	}
}
