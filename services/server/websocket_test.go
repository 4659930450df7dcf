// Copyright (C) 2025 Aayush Sood
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aayush-Sood101/BlackBox/services/inference/pipeline"
	"github.com/Aayush-Sood101/BlackBox/services/inference/sandbox"
	"github.com/Aayush-Sood101/BlackBox/services/llm"
)

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

// readFrames drains the socket until the server closes it, returning
// every frame received.
func readFrames(t *testing.T, conn *websocket.Conn) []wsFrame {
	t.Helper()
	var frames []wsFrame
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var frame wsFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return frames
			}
			t.Fatalf("unexpected websocket error: %v", err)
		}
		frames = append(frames, frame)
	}
}

func TestProgressSocketStreamsUntilTerminal(t *testing.T) {
	runner := &sandbox.MockRunner{Program: summingProgram, Latency: 5 * time.Millisecond}
	client := &llm.MockClient{
		Responses: []string{`{"title":"Array Sum","statement":"Output the sum of n integers.","algorithm":"Array Sum"}`},
	}
	fx := newTestServer(t, runner, client, 1<<20)

	ts := httptest.NewServer(fx.server.Handler())
	defer ts.Close()

	run := fx.server.pipeline.NewRun()
	fx.registry.Put(run)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws/runs/"+run.ID), nil)
	require.NoError(t, err)
	defer conn.Close()

	go fx.server.pipeline.Run(context.Background(), run, pipeline.Request{
		ExecutablePath:  "/fake/target",
		FormatText:      "First line contains n, second line contains n integers.",
		ConstraintsText: "1 <= n <= 100000",
	})

	frames := readFrames(t, conn)
	require.NotEmpty(t, frames)

	// First frame is always a status snapshot.
	require.Equal(t, "status", frames[0].Type)
	require.NotNil(t, frames[0].Status)
	assert.Equal(t, run.ID, frames[0].Status.RunID)

	// Last frame is the terminal snapshot.
	last := frames[len(frames)-1]
	require.Equal(t, "status", last.Type)
	require.NotNil(t, last.Status)
	assert.True(t, last.Status.Stage.Terminal())

	sawProgress := false
	for _, f := range frames {
		if f.Type == "progress" {
			require.NotNil(t, f.Event)
			assert.Equal(t, run.ID, f.Event.RunID)
			sawProgress = true
		}
	}
	assert.True(t, sawProgress, "expected at least one progress event")
}

// Attaching after the run finished still yields the terminal snapshot
// and a clean close, with no progress replay.
func TestProgressSocketLateSubscriber(t *testing.T) {
	fx := summingFixture(t)

	ts := httptest.NewServer(fx.server.Handler())
	defer ts.Close()

	run := fx.server.pipeline.NewRun()
	fx.registry.Put(run)
	fx.server.pipeline.Run(context.Background(), run, pipeline.Request{ExecutablePath: "/fake/target"})
	require.True(t, run.Stage().Terminal())

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws/runs/"+run.ID), nil)
	require.NoError(t, err)
	defer conn.Close()

	frames := readFrames(t, conn)
	require.NotEmpty(t, frames)
	for _, f := range frames {
		assert.Equal(t, "status", f.Type)
	}
	assert.True(t, frames[len(frames)-1].Status.Stage.Terminal())
}

func TestProgressSocketUnknownRun(t *testing.T) {
	fx := summingFixture(t)

	ts := httptest.NewServer(fx.server.Handler())
	defer ts.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws/runs/no-such-run"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
