package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/otcore/internal/model"
)

// Frame types sent to feed clients.
const (
	FramePatch      = "patch"
	FrameError      = "error"
	FrameSubscribed = "subscribed"
)

// Subscribed is the content of a FrameSubscribed frame. Patches after
// Revision follow.
type Subscribed struct {
	Object   string `json:"object"`
	Revision int64  `json:"revision"`
}

// Client frame commands.
const (
	cmdSubscribe   = "+"
	cmdUnsubscribe = "-"
)

// Frame is one server-to-client feed message.
type Frame struct {
	Type    string `json:"type"`
	Content any    `json:"content"`
}

type feedConfig struct {
	pingInterval time.Duration
	pongWait     time.Duration
	writeWait    time.Duration
	sendBuffer   int
	maxFrameSize int64
}

func defaultFeedConfig() feedConfig {
	return feedConfig{
		pingInterval: 30 * time.Second,
		pongWait:     60 * time.Second,
		writeWait:    10 * time.Second,
		sendBuffer:   64,
		maxFrameSize: 4096,
	}
}

// handleFeed upgrades to a websocket carrying any number of object
// subscriptions. Client frames are JSON arrays:
//
//	["+", "tenant/type/id"]          subscribe from the current head
//	["+", "tenant/type/id", 12]      subscribe after revision 12
//	["-", "tenant/type/id"]          unsubscribe
//
// Each subscription is acknowledged with a "subscribed" frame naming the
// revision its "patch" frames start after.
func (s *Server) handleFeed(c *gin.Context) {
	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.logger.Debug("feed upgrade failed", zap.Error(err))
		return
	}
	fc := &feedConn{
		srv:  s,
		ws:   ws,
		out:  make(chan Frame, s.feed.sendBuffer),
		subs: make(map[string]*feedSub),
		log:  s.logger.With(zap.String("remote", c.Request.RemoteAddr)),
	}
	fc.serve(c.Request.Context())
}

type feedConn struct {
	srv *Server
	ws  *websocket.Conn
	out chan Frame
	log *zap.Logger

	mu   sync.Mutex
	subs map[string]*feedSub
}

type feedSub struct {
	cancel context.CancelFunc
}

func (fc *feedConn) serve(parent context.Context) {
	g, ctx := errgroup.WithContext(parent)
	fc.log.Debug("feed connected")

	g.Go(func() error { return fc.writeLoop(ctx) })
	g.Go(func() error { return fc.readLoop(ctx, g) })

	err := g.Wait()
	fc.log.Debug("feed closed", zap.Error(err))
}

// readLoop handles client frames until the connection fails.
func (fc *feedConn) readLoop(ctx context.Context, g *errgroup.Group) error {
	cfg := fc.srv.feed
	fc.ws.SetReadLimit(cfg.maxFrameSize)
	_ = fc.ws.SetReadDeadline(time.Now().Add(cfg.pongWait))
	fc.ws.SetPongHandler(func(string) error {
		return fc.ws.SetReadDeadline(time.Now().Add(cfg.pongWait))
	})

	for {
		_, data, err := fc.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return errFeedClosed
			}
			return err
		}
		cmd, id, from, err := parseClientFrame(data)
		if err != nil {
			fc.send(ctx, Frame{Type: FrameError, Content: err.Error()})
			continue
		}
		switch cmd {
		case cmdSubscribe:
			fc.subscribe(ctx, g, id, from)
		case cmdUnsubscribe:
			fc.unsubscribe(id)
		}
	}
}

var errFeedClosed = errors.New("feed closed by client")

// writeLoop is the only writer on the socket.
func (fc *feedConn) writeLoop(ctx context.Context) error {
	cfg := fc.srv.feed
	ticker := time.NewTicker(cfg.pingInterval)
	defer func() {
		ticker.Stop()
		_ = fc.ws.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = fc.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(cfg.writeWait))
			return nil
		case f := <-fc.out:
			_ = fc.ws.SetWriteDeadline(time.Now().Add(cfg.writeWait))
			if err := fc.ws.WriteJSON(f); err != nil {
				return fmt.Errorf("write frame: %w", err)
			}
		case <-ticker.C:
			_ = fc.ws.SetWriteDeadline(time.Now().Add(cfg.writeWait))
			if err := fc.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		}
	}
}

func (fc *feedConn) send(ctx context.Context, f Frame) bool {
	select {
	case fc.out <- f:
		return true
	case <-ctx.Done():
		return false
	}
}

func (fc *feedConn) subscribe(ctx context.Context, g *errgroup.Group, id model.ObjectID, from *int64) {
	key := id.String()

	fc.mu.Lock()
	if _, ok := fc.subs[key]; ok {
		fc.mu.Unlock()
		return
	}
	subCtx, cancel := context.WithCancel(ctx)
	sub := &feedSub{cancel: cancel}
	fc.subs[key] = sub
	fc.mu.Unlock()

	g.Go(func() error {
		defer fc.release(key, sub)

		start, err := fc.startRevision(subCtx, id, from)
		if err != nil {
			fc.send(subCtx, Frame{Type: FrameError, Content: fmt.Sprintf("%s: %v", key, err)})
			return nil
		}
		if !fc.send(subCtx, Frame{Type: FrameSubscribed, Content: Subscribed{Object: key, Revision: start}}) {
			return nil
		}
		for op, err := range fc.srv.notifier.Subscribe(subCtx, id, start) {
			if err != nil {
				fc.log.Warn("feed subscription failed", zap.String("object", key), zap.Error(err))
				fc.send(subCtx, Frame{Type: FrameError, Content: fmt.Sprintf("%s: %v", key, err)})
				return nil
			}
			if !fc.send(subCtx, Frame{Type: FramePatch, Content: op}) {
				return nil
			}
		}
		return nil
	})
}

// startRevision resolves an omitted start revision to the object's
// current head, so the client only sees new operations.
func (fc *feedConn) startRevision(ctx context.Context, id model.ObjectID, from *int64) (int64, error) {
	if from != nil {
		return *from, nil
	}
	snap, err := fc.srv.loadSnapshot(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	return snap.Revision, nil
}

func (fc *feedConn) unsubscribe(id model.ObjectID) {
	key := id.String()
	fc.mu.Lock()
	sub := fc.subs[key]
	fc.mu.Unlock()
	if sub != nil {
		fc.release(key, sub)
	}
}

// release cancels sub and forgets it unless it was already replaced.
func (fc *feedConn) release(key string, sub *feedSub) {
	sub.cancel()
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if fc.subs[key] == sub {
		delete(fc.subs, key)
	}
}

// parseClientFrame decodes ["+"|"-", "tenant/type/id", fromRevision?].
func parseClientFrame(data []byte) (string, model.ObjectID, *int64, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return "", model.ObjectID{}, nil, fmt.Errorf("frame must be a JSON array: %w", err)
	}
	if len(parts) < 2 || len(parts) > 3 {
		return "", model.ObjectID{}, nil, fmt.Errorf("frame must have 2 or 3 elements, got %d", len(parts))
	}

	var cmd, rawID string
	if err := json.Unmarshal(parts[0], &cmd); err != nil {
		return "", model.ObjectID{}, nil, fmt.Errorf("frame command: %w", err)
	}
	if cmd != cmdSubscribe && cmd != cmdUnsubscribe {
		return "", model.ObjectID{}, nil, fmt.Errorf("unknown frame command %q", cmd)
	}
	if err := json.Unmarshal(parts[1], &rawID); err != nil {
		return "", model.ObjectID{}, nil, fmt.Errorf("frame object id: %w", err)
	}
	id, err := model.ParseObjectID(rawID)
	if err != nil {
		return "", model.ObjectID{}, nil, err
	}

	if len(parts) == 2 {
		return cmd, id, nil, nil
	}
	if cmd == cmdUnsubscribe {
		return "", model.ObjectID{}, nil, errors.New("unsubscribe takes no revision")
	}
	var from int64
	if err := json.Unmarshal(parts[2], &from); err != nil || from < 0 {
		return "", model.ObjectID{}, nil, fmt.Errorf("frame revision must be a non-negative integer")
	}
	return cmd, id, &from, nil
}
