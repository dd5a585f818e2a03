package api

import (
	"strings"
	"time"

	gin "github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/rustyeddy/stockledger/events"
	"github.com/rustyeddy/stockledger/market"
)

const (
	streamBuffer = 64
	writeWait    = 10 * time.Second
)

// Stream message types.
const (
	MsgInitial = "initial"
	MsgUpdate  = "update"
	MsgOrder   = "order"
)

type streamMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// stream upgrades to a websocket and pushes price updates, plus order events
// when the auth proxy set the user header. Each connection holds its own hub
// subscriptions and drops them on return.
func (s *Server) stream(c *gin.Context) {
	user := strings.TrimSpace(c.GetHeader(UserHeader))

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error.
		s.Logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	var quotes <-chan market.Quote
	if s.Deps.Quotes != nil {
		ch, cancel := s.Deps.Quotes.Subscribe(streamBuffer, nil)
		defer cancel()
		quotes = ch
	}
	var orderEvents <-chan events.OrderExecuted
	if user != "" && s.Deps.OrderEvents != nil {
		ch, cancel := s.Deps.OrderEvents.Subscribe(streamBuffer, events.ForUser(user))
		defer cancel()
		orderEvents = ch
	}

	initial := []market.Quote{}
	if s.Deps.Prices != nil {
		initial = s.Deps.Prices.Snapshot()
	}
	if err := s.send(conn, MsgInitial, initial); err != nil {
		return
	}

	// The client never sends data; reading only surfaces close frames.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(s.pingInterval)
	defer ping.Stop()

	s.Logger.Info("stream connected", zap.String("user", user), zap.String("request_id", c.GetString(requestIDKey)))
	defer s.Logger.Info("stream closed", zap.String("user", user))

	for {
		select {
		case <-done:
			return
		case q, ok := <-quotes:
			if !ok {
				s.closeStream(conn)
				return
			}
			if err := s.send(conn, MsgUpdate, drain(q, quotes)); err != nil {
				return
			}
		case ev, ok := <-orderEvents:
			if !ok {
				orderEvents = nil
				continue
			}
			if err := s.send(conn, MsgOrder, ev.Order); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (s *Server) send(conn *websocket.Conn, typ string, data any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(streamMessage{Type: typ, Data: data}); err != nil {
		s.Logger.Debug("stream write failed", zap.String("type", typ), zap.Error(err))
		return err
	}
	return nil
}

func (s *Server) closeStream(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

// drain batches first with whatever quotes are already queued so one feed
// step goes out as one update message.
func drain(first market.Quote, ch <-chan market.Quote) []market.Quote {
	batch := []market.Quote{first}
	for {
		select {
		case q, ok := <-ch:
			if !ok {
				return batch
			}
			batch = append(batch, q)
		default:
			return batch
		}
	}
}
