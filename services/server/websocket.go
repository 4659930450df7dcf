// Copyright (C) 2025 Aayush Sood
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Aayush-Sood101/BlackBox/services/inference/pipeline"
)

// writeWait bounds a single WebSocket write so a stalled client can
// never wedge the handler.
const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// wsFrame is one message on the progress stream. Exactly one of
// Status and Event is set, discriminated by Type.
type wsFrame struct {
	Type   string                  `json:"type"` // "status" or "progress"
	Status *pipeline.Status        `json:"status,omitempty"`
	Event  *pipeline.ProgressEvent `json:"event,omitempty"`
}

func statusFrame(st pipeline.Status) wsFrame {
	return wsFrame{Type: "status", Status: &st}
}

func progressFrame(ev pipeline.ProgressEvent) wsFrame {
	return wsFrame{Type: "progress", Event: &ev}
}

// handleProgressSocket streams a run's progress events to the client.
//
// # Description
//
// The first frame is always a status snapshot, so late subscribers
// see where the run stands before events start flowing. Events
// emitted before attachment are not replayed. When the run reaches a
// terminal stage the handler sends a final snapshot and a normal
// close frame.
//
// # Thread Safety
//
// One goroutine writes, one drains client reads to detect
// disconnects. The subscription is detached on every exit path.
func (s *Server) handleProgressSocket(c *gin.Context) {
	run, err := s.registry.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "run_id", run.ID, "error", err)
		return
	}
	defer ws.Close()

	events, detach := run.Subscribe()
	defer detach()

	// Read pump: the client never sends application data, but reading
	// is how we learn it went away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := s.writeFrame(ws, statusFrame(run.Status())); err != nil {
		return
	}

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				// Terminal stage: broker closed the channel.
				if err := s.writeFrame(ws, statusFrame(run.Status())); err != nil {
					return
				}
				ws.SetWriteDeadline(time.Now().Add(writeWait))
				ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"))
				return
			}
			if err := s.writeFrame(ws, progressFrame(ev)); err != nil {
				return
			}
		case <-gone:
			s.logger.Debug("websocket client disconnected", "run_id", run.ID)
			return
		}
	}
}

func (s *Server) writeFrame(ws *websocket.Conn, frame wsFrame) error {
	ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.WriteJSON(frame); err != nil {
		s.logger.Debug("websocket write failed", "error", err)
		return err
	}
	return nil
}
