package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"gigchat/internal/chat"
	"gigchat/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	DefaultPingInterval = 25 * time.Second
	DefaultPongWait     = 60 * time.Second
	DefaultWriteWait    = 10 * time.Second
	DefaultSendBuffer   = 64
)

type wsConnection interface {
	Close() error
	WriteJSON(v any) error
	ReadMessage() (messageType int, p []byte, err error)
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
}

// chatService is what a connection needs from chat.Service.
type chatService interface {
	Register(conn models.Conn, userID, userName string, role models.Role) error
	Join(conn models.Conn, key string) error
	Send(ctx context.Context, req chat.SendRequest) (models.Message, error)
	MarkRead(ctx context.Context, jobID, readerID string) error
	TypingStart(conn chat.Participant, key, userID, userName string) bool
	TypingStop(conn models.Conn, key, userID string) bool
	Touch(conn models.Conn, userID string)
	Disconnect(conn models.Conn, userID string)
}

type Config struct {
	PingInterval time.Duration
	PongWait     time.Duration
	WriteWait    time.Duration
	SendBuffer   int
	Log          *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.PingInterval <= 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.PongWait <= 0 {
		c.PongWait = DefaultPongWait
	}
	if c.WriteWait <= 0 {
		c.WriteWait = DefaultWriteWait
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = DefaultSendBuffer
	}
	if c.Log == nil {
		c.Log = slog.Default()
	}
	return c
}

// inbound is a frame read from the socket, or the reason it could not be
// decoded. Decode errors are per frame; read errors end the connection.
type inbound struct {
	frame models.Frame
	err   error
}

// Connection is one websocket client. Client frames are processed one at a
// time on the main loop; server events are queued on a buffered channel and
// written by the same loop.
type Connection struct {
	id  string
	ws  wsConnection
	svc chatService
	cfg Config
	log *slog.Logger

	// userID and typing are owned by the main loop.
	userID string
	typing chat.TypingState

	fromClient chan inbound
	outbound   chan models.ServerEvent
	errorCh    chan error
	done       chan struct{}
}

func NewConnection(svc chatService, ws wsConnection, cfg Config) *Connection {
	cfg = cfg.withDefaults()
	id := uuid.NewString()
	return &Connection{
		id:         id,
		ws:         ws,
		svc:        svc,
		cfg:        cfg,
		log:        cfg.Log.With("conn_id", id),
		fromClient: make(chan inbound),
		outbound:   make(chan models.ServerEvent, cfg.SendBuffer),
		errorCh:    make(chan error, 2),
		done:       make(chan struct{}),
	}
}

func (c *Connection) ID() string { return c.id }

func (c *Connection) Typing() *chat.TypingState { return &c.typing }

// Send queues ev for the client. It never blocks: a closed connection or a
// full buffer drops the event.
func (c *Connection) Send(ev models.ServerEvent) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.outbound <- ev:
		return true
	default:
		return false
	}
}

// Handle runs the connection until the client goes away or ctx is done.
func (c *Connection) Handle(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		close(c.done)
		close(c.errorCh)
		c.svc.Disconnect(c, c.userID)
		c.log.Debug("connection closed", "user_id", c.userID)
	}()

	if err := c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait)); err != nil {
		cancel()
		return err
	}
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	var wg sync.WaitGroup
	wg.Go(func() {
		c.errorCh <- c.pumpMessages(ctx)
		cancel()
	})

	wg.Go(func() {
		c.errorCh <- c.mainLoop(ctx)
		cancel()
	})

	var err error
	select {
	case err = <-c.errorCh:
	case <-ctx.Done():
	}
	_ = c.ws.Close()
	wg.Wait()

	if err != nil && !errors.Is(err, context.Canceled) && !isClosure(err) {
		return err
	}

	return nil
}

func (c *Connection) pumpMessages(ctx context.Context) error {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return err
		}
		var in inbound
		if err := json.Unmarshal(data, &in.frame); err != nil {
			in.err = err
		}
		if err := c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait)); err != nil {
			return err
		}

		select {
		case c.fromClient <- in:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Connection) mainLoop(ctx context.Context) error {
	ping := time.NewTicker(c.cfg.PingInterval)
	defer ping.Stop()

	for {
		select {
		case in := <-c.fromClient:
			if in.err != nil {
				c.log.Debug("malformed frame", "user_id", c.userID, "error", in.err)
				c.reply(models.NewErrorEvent("malformed frame"))
				continue
			}
			c.processClientMessage(ctx, in.frame)
		case ev := <-c.outbound:
			if err := c.write(ev); err != nil {
				return err
			}
		case <-ping.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteWait)); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Connection) write(ev models.ServerEvent) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
		return err
	}
	return c.ws.WriteJSON(ev)
}

func (c *Connection) processClientMessage(ctx context.Context, frame models.Frame) {
	ev, err := models.DecodeClientEvent(frame)
	if err != nil {
		c.reply(models.NewErrorEvent(err.Error()))
		return
	}

	c.svc.Touch(c, c.userID)

	switch e := ev.(type) {
	case models.UserJoin:
		if err = c.svc.Register(c, e.UserID, e.UserName, e.Role); err == nil {
			c.userID = e.UserID
		}
	case models.ChatJoin:
		err = c.svc.Join(c, e.ConversationKey)
	case models.MessageSend:
		_, err = c.svc.Send(ctx, chat.SendRequest{
			ConversationKey: e.ConversationKey,
			SenderID:        e.SenderID,
			SenderName:      e.SenderName,
			SenderRole:      e.SenderRole,
			ReceiverID:      e.ReceiverID,
			Body:            e.Body,
			Kind:            e.Kind,
		})
	case models.MessageRead:
		err = c.svc.MarkRead(ctx, e.ConversationKey, e.ReaderID)
	case models.TypingStart:
		c.svc.TypingStart(c, e.ConversationKey, e.UserID, e.UserName)
	case models.TypingStop:
		c.svc.TypingStop(c, e.ConversationKey, e.UserID)
	}

	if err != nil {
		c.log.Debug("client event rejected", "event", frame.Event, "user_id", c.userID, "error", err)
		c.reply(models.NewErrorEvent(errorMessage(frame.Event, err)))
	}
}

// reply queues an event for this client only.
func (c *Connection) reply(ev models.ServerEvent) {
	if !c.Send(ev) {
		c.log.Debug("reply dropped", "event", ev.Event)
	}
}

// errorMessage is the text shown to the client. Store errors are not
// exposed verbatim.
func errorMessage(event models.EventName, err error) string {
	if errors.Is(err, models.ErrPersistence) {
		switch event {
		case models.EventMessageSend:
			return "failed to save message"
		case models.EventMessageRead:
			return "failed to mark messages read"
		}
		return "storage unavailable"
	}
	return err.Error()
}

func isClosure(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived)
}
