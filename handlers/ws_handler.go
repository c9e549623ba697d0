package handlers

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/girjesh-suryawanshi/secureshare-sub000/config"
	logger "github.com/girjesh-suryawanshi/secureshare-sub000/logging"
	"github.com/girjesh-suryawanshi/secureshare-sub000/protocol"
	"github.com/girjesh-suryawanshi/secureshare-sub000/queues"
	"github.com/girjesh-suryawanshi/secureshare-sub000/services"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const writeWait = 10 * time.Second

// wsClient is the models.Peer for one websocket. All writes go through the
// outbox so only its goroutine touches the writer side of the connection.
type wsClient struct {
	conn   *websocket.Conn
	outbox *queues.Outbox

	closeOnce sync.Once
}

func newWSClient(parent context.Context, conn *websocket.Conn, outboxSize int, pingPeriod time.Duration) *wsClient {
	c := &wsClient{conn: conn}
	c.outbox = queues.NewOutbox(parent, outboxSize, c.write, queues.WithHeartbeat(pingPeriod, c.ping))
	return c
}

func (c *wsClient) write(msg any) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(msg)
}

func (c *wsClient) ping() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (c *wsClient) Send(msg any) bool {
	return c.outbox.Send(msg)
}

func (c *wsClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = c.conn.Close()

		ctx, cancel := context.WithTimeout(context.Background(), writeWait)
		defer cancel()
		if serr := c.outbox.Shutdown(ctx); serr != nil && err == nil {
			err = serr
		}
	})
	return err
}

type WSHandler struct {
	router   *MessageRouter
	sessions services.SessionService
	cfg      config.SessionConfig
	upgrader websocket.Upgrader

	// parent of every client outbox; cancelled on server shutdown
	ctx    context.Context
	logger logger.Logger
}

func NewWSHandler(
	ctx context.Context,
	router *MessageRouter,
	sessions services.SessionService,
	cfg config.SessionConfig,
	allowedOrigins []string,
	l logger.Logger,
) *WSHandler {
	return &WSHandler{
		router:   router,
		sessions: sessions,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		ctx:    ctx,
		logger: l,
	}
}

// originChecker allows every origin when the list is empty or contains "*".
// Requests without an Origin header come from non-browser clients and pass.
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

func (h *WSHandler) pingPeriod() time.Duration {
	return h.cfg.LivenessTimeout * 9 / 10
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	client := newWSClient(h.ctx, conn, h.cfg.OutboxSize, h.pingPeriod())
	client.outbox.Start()

	id, err := h.sessions.Connect(client)
	if err != nil {
		_ = client.Close()
		return
	}

	// a dead writer ends the read loop too
	go func() {
		<-client.outbox.Done()
		_ = conn.Close()
	}()

	reason := h.readLoop(r.Context(), id, client)
	h.sessions.Disconnect(id, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, id string, client *wsClient) string {
	conn := client.conn
	conn.SetReadLimit(h.cfg.MaxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(h.cfg.LivenessTimeout))
	conn.SetPongHandler(func(string) error {
		h.sessions.Touch(id)
		return conn.SetReadDeadline(time.Now().Add(h.cfg.LivenessTimeout))
	})

	limiter := rate.NewLimiter(rate.Limit(h.cfg.MessagesPerSecond), h.cfg.MessageBurst)
	log := h.logger.With("connection_id", id)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return closeReason(err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(h.cfg.LivenessTimeout))

		if !limiter.Allow() {
			h.sessions.Touch(id)
			client.Send(protocol.NewError(protocol.ReasonRateLimited, "too many messages, slow down"))
			continue
		}

		for _, reply := range h.router.Handle(ctx, id, raw) {
			if !client.Send(reply) {
				log.Warn("outbox full, reply dropped")
			}
		}
	}
}

func closeReason(err error) string {
	var closeErr *websocket.CloseError
	switch {
	case errors.As(err, &closeErr):
		return "client closed"
	case errors.Is(err, websocket.ErrReadLimit):
		return "message too large"
	default:
		return "read error"
	}
}
