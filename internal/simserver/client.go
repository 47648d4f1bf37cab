package simserver

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/spreads/client/internal/protocol"
)

// client is one push-channel connection.
type client struct {
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	sendOnce sync.Once
	server   *Server
	limiter  *rate.Limiter
}

// closeSend signals writePump to shut down. Safe to call more than once.
func (c *client) closeSend() {
	c.sendOnce.Do(func() {
		close(c.done)
	})
}

// push encodes msg and queues it without blocking.
func (c *client) push(msg protocol.Inbound) {
	data, err := protocol.Encode(msg)
	if err != nil {
		log.Printf("simserver: %v", err)
		return
	}
	select {
	case <-c.done:
	case c.send <- data:
	default:
		log.Printf("simserver: send buffer full, dropping %s", msg.Type())
	}
}

// writePump drains the send channel and pings every pingInterval.
func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return

		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("simserver: write error: %v", err)
				c.closeSend()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.closeSend()
				return
			}
		}
	}
}

// readPump reads commands until the connection drops.
func (c *client) readPump() {
	defer func() {
		c.server.removeClient(c)
		c.closeSend()
		log.Printf("simserver: client disconnected (%d remaining)", c.server.ClientCount())
	}()

	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseAbnormalClosure) {
				log.Printf("simserver: read error: %v", err)
			}
			return
		}

		if !c.limiter.Allow() {
			c.push(protocol.CaptureError{Message: "too many commands, slow down"})
			continue
		}

		cmd, err := protocol.DecodeCommand(data)
		if err != nil {
			log.Printf("simserver: %v", err)
			c.push(protocol.Log{Level: "ERROR", Message: "invalid command: " + err.Error()})
			continue
		}

		switch cmd := cmd.(type) {
		case protocol.Capture:
			go c.server.simulateCapture(c, cmd)
		case protocol.StartProcessing:
			c.server.startProcessing(c, cmd)
		case protocol.CancelProcessing:
			c.server.cancelProcessing(c, cmd)
		case nil:
			log.Printf("simserver: ignoring unknown command")
		}
	}
}
