// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package socketmode

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsConn adapts *websocket.Conn to the Conn contract. Writes are
// serialized: acks come from the receive loop while pong replies come
// from the transport's ping handler goroutine.
type wsConn struct {
	writeMu sync.Mutex
	conn    *websocket.Conn
}

// dialWebsocket is the production DialFunc.
func dialWebsocket(ctx context.Context, url string) (Conn, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial: %w (HTTP %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	wc := &wsConn{conn: conn}
	conn.SetPingHandler(func(appData string) error {
		wc.writeMu.Lock()
		defer wc.writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})
	return wc, nil
}

func (w *wsConn) ReadFrame() ([]byte, error) {
	msgType, data, err := w.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if msgType != websocket.TextMessage {
		return nil, fmt.Errorf("unexpected frame type %d", msgType)
	}
	return data, nil
}

func (w *wsConn) WriteAck(envelopeID string) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	return w.conn.WriteJSON(ack{EnvelopeID: envelopeID})
}

func (w *wsConn) SetReadDeadline(t time.Time) error {
	return w.conn.SetReadDeadline(t)
}

func (w *wsConn) Close() error {
	return w.conn.Close()
}
