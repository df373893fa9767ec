package api

import (
	"context"
	"encoding/json"
	"time"

	"github.com/coder/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	pcsync "github.com/frankstormy/pincafe/internal/sync"
)

// EventType names a message on the event stream.
type EventType string

const (
	// EventStatus carries a sync status. One is sent on connect.
	EventStatus EventType = "sync_status"

	// EventRemoteImport tells the client to reload: another device's data
	// replaced the local collections.
	EventRemoteImport EventType = "remote_import"
)

// Event is a message on the /api/events websocket.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// eventBuffer bounds messages queued for a slow client. New events are
// dropped while it is full.
const eventBuffer = 32

func newEvent(t EventType, data any) Event {
	ev := Event{Type: t, Timestamp: time.Now().UTC()}
	if data != nil {
		// Status always marshals.
		ev.Data, _ = json.Marshal(data)
	}
	return ev
}

// events streams sync status changes and remote imports to a websocket
// client until it disconnects or the server stops.
func (s *Server) events(c echo.Context) error {
	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		loggerFrom(c).Debug("websocket upgrade failed", zap.Error(err))
		return nil
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.closing:
			cancel()
		case <-ctx.Done():
		}
	}()
	// Client messages are ignored; CloseRead ends ctx when the client leaves.
	ctx = conn.CloseRead(ctx)

	queue := make(chan Event, eventBuffer)
	offer := func(ev Event) {
		select {
		case queue <- ev:
		default:
		}
	}
	offer(newEvent(EventStatus, s.app.GetSyncStatus()))

	unsubStatus := s.app.OnSyncStatusChange(func(st pcsync.Status) {
		offer(newEvent(EventStatus, st))
	})
	defer unsubStatus()
	unsubImport := s.app.OnRemoteImport(func() {
		offer(newEvent(EventRemoteImport, nil))
	})
	defer unsubImport()

	log := loggerFrom(c)
	log.Debug("event client connected")
	for {
		select {
		case <-ctx.Done():
			log.Debug("event client disconnected")
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
			return nil
		case ev := <-queue:
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			writeCtx, writeCancel := context.WithTimeout(ctx, 5*time.Second)
			err = conn.Write(writeCtx, websocket.MessageText, data)
			writeCancel()
			if err != nil {
				log.Debug("event client write failed", zap.Error(err))
				return nil
			}
		}
	}
}
