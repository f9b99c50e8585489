package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mahaj/chat-core/pkg/history"
	"github.com/mahaj/chat-core/pkg/model"
	"github.com/mahaj/chat-core/pkg/tracker"
)

// ackTimeout is how long a send may stay pending before the client gives up
// and shows it as failed locally.
const ackTimeout = 10 * time.Second

func fetchHistory(apiAddr string) {
	resp, err := http.Get(apiAddr + "/api/messages?limit=20")
	if err != nil {
		log.Printf("history fetch failed: %v", err)
		return
	}
	defer resp.Body.Close()

	var page history.Page
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		log.Printf("history decode failed: %v", err)
		return
	}

	for _, msg := range page.Messages {
		fmt.Printf("%s: %s\n", msg.Sender, msg.Content)
	}
	if page.HasMore {
		fmt.Printf("(%d older messages not shown)\n", page.Total-len(page.Messages))
	}
}

func main() {
	serverAddr := flag.String("addr", "localhost:8080", "chat server address")
	apiAddr := flag.String("api", "http://localhost:8080", "read api address")
	username := flag.String("user", "", "username")
	token := flag.String("token", "", "connection token (when the server requires one)")
	flag.Parse()

	if *username == "" && *token == "" {
		log.Fatal("provide -user (or -token)")
	}

	// Show recent history before going live.
	fetchHistory(*apiAddr)

	u := url.URL{Scheme: "ws", Host: *serverAddr, Path: "/ws"}
	q := u.Query()
	if *token != "" {
		q.Set("token", *token)
	} else {
		q.Set("username", *username)
	}
	u.RawQuery = q.Encode()

	log.Printf("connecting to %s", u.String())
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer c.Close()

	track := tracker.New()
	done := make(chan struct{})

	// Local give-up: a send with no ack after ackTimeout shows as failed.
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				for _, tempID := range track.Expire(ackTimeout) {
					fmt.Printf("\r(failed: no ack for %d)\n> ", tempID)
				}
			case <-done:
				return
			}
		}
	}()

	go func() {
		defer close(done)
		for {
			_, raw, err := c.ReadMessage()
			if err != nil {
				log.Println("read:", err)
				return
			}

			var env model.Envelope
			if err := json.Unmarshal(raw, &env); err != nil {
				log.Printf("received raw: %s", raw)
				continue
			}
			printEvent(env, track)
		}
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	send := func(typ model.EventType, payload any) {
		frame, err := model.Encode(typ, payload)
		if err != nil {
			log.Println("encode:", err)
			return
		}
		if err := c.WriteMessage(websocket.TextMessage, frame); err != nil {
			log.Println("write:", err)
		}
	}

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		fmt.Print("> ")
		for scanner.Scan() {
			text := strings.TrimSpace(scanner.Text())
			switch {
			case text == "":
			case text == "/quit":
				close(interrupt)
				return
			case text == "/typing":
				send(model.EventTyping, model.TypingPayload{Typing: true})
			case strings.HasPrefix(text, "/dm "):
				parts := strings.SplitN(text[4:], " ", 2)
				if len(parts) != 2 {
					fmt.Println("usage: /dm <connection-id> <message>")
					break
				}
				tempID := track.NextTempID()
				track.Track(tempID)
				send(model.EventPrivateMessage, model.PrivateMessagePayload{To: parts[0], Content: parts[1], TempID: tempID})
			default:
				tempID := track.NextTempID()
				track.Track(tempID)
				send(model.EventSendMessage, model.SendMessagePayload{Content: text, TempID: tempID})
			}
			fmt.Print("> ")
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-interrupt:
			log.Println("interrupt")

			// Cleanly close the connection by sending a close message and then
			// waiting (with timeout) for the server to close the connection.
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.Println("write close:", err)
				return
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		}
	}
}

func printEvent(env model.Envelope, track *tracker.Tracker) {
	switch env.Type {
	case model.EventReceiveMessage, model.EventPrivateMessage:
		var msg model.Message
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return
		}
		prefix := ""
		if msg.Private {
			prefix = "[dm] "
		}
		fmt.Printf("\r%s%s: %s\n> ", prefix, msg.Sender, msg.Content)

	case model.EventAck:
		var ack model.Ack
		if err := json.Unmarshal(env.Data, &ack); err != nil {
			return
		}
		// Unmatched acks (already expired, or duplicates) are ignored.
		if status, ok := track.Resolve(ack.TempID, ack.ServerID); ok {
			fmt.Printf("\r(%s)\n> ", status)
		}

	case model.EventUserJoined:
		var p model.Participant
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return
		}
		fmt.Printf("\r%s joined (%s)\n> ", p.Username, p.ID)

	case model.EventUserLeft:
		var p model.Participant
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return
		}
		fmt.Printf("\r%s left\n> ", p.Username)

	case model.EventTypingUsers:
		var typing []string
		if err := json.Unmarshal(env.Data, &typing); err != nil {
			return
		}
		if len(typing) > 0 {
			fmt.Printf("\r%s typing...\n> ", strings.Join(typing, ", "))
		}

	case model.EventUserList:
		// Rendered on demand, not on every change.
	}
}
