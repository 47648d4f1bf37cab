// Command wsclient dumps the frames of a spreads push channel.
// Usage: go run ./cmd/wsclient ws://127.0.0.1:5000/ws
package main

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"github.com/spreads/client/internal/protocol"
)

func main() {
	url := "ws://127.0.0.1:5000/ws"
	if len(os.Args) > 1 {
		url = os.Args[1]
	}

	fmt.Printf("Connecting to %s...\n", url)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	fmt.Println("Connected! Waiting for frames...")

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	done := make(chan struct{})
	frameCount := 0

	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					fmt.Printf("Read error: %v\n", err)
				}
				return
			}

			frameCount++

			msg, err := protocol.Decode(data)
			switch {
			case err != nil:
				fmt.Printf("[%d] MALFORMED %v: %s\n", frameCount, err, data)
			case msg == nil:
				fmt.Printf("[%d] unknown: %s\n", frameCount, data)
			default:
				fmt.Printf("[%d] %s/%s %+v\n", frameCount, msg.Domain(), msg.Type(), msg)
			}
		}
	}()

	select {
	case <-done:
		fmt.Println("Connection closed")
	case <-interrupt:
		fmt.Println("Interrupted")
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	}

	fmt.Printf("Total frames received: %d\n", frameCount)
}
