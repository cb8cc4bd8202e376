package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/privatelovie/social-commerce-platform-sub001/internal/events"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/proto"
)

// ws_smoke connects the recipient over websocket, sends one message over REST as
// the sender, waits for it to arrive and acknowledges it as read.
// Tokens come from `cartchat token --user <id>`.
func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "http://localhost:8080", "server base URL")
	senderToken := flag.String("sender-token", "", "access token of the sender")
	recipientToken := flag.String("recipient-token", "", "access token of the recipient")
	to := flag.String("to", "", "recipient user id")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	if *senderToken == "" || *recipientToken == "" || *to == "" {
		return fmt.Errorf("-sender-token, -recipient-token and -to are required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	wsURL := strings.Replace(*addr, "http", "ws", 1) + "/ws?token=" + *recipientToken
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	if err := sendFrame(ctx, conn, proto.InboundTypeJoin, proto.JoinData{Protocol: proto.ProtocolVersion}); err != nil {
		return err
	}
	if _, err := waitFor(ctx, conn, proto.EventJoined); err != nil {
		return err
	}

	if err := postMessage(ctx, *addr, *senderToken, *to, *text); err != nil {
		return err
	}

	out, err := waitFor(ctx, conn, events.NewMessage)
	if err != nil {
		return err
	}
	var pushed proto.NewMessageEvent
	if err := json.Unmarshal(out.Data, &pushed); err != nil {
		return fmt.Errorf("decode new_message: %w", err)
	}
	if pushed.Message.Message == nil {
		return fmt.Errorf("new_message without a message")
	}
	msg := pushed.Message
	from := msg.Sender
	if msg.SenderInfo != nil && msg.SenderInfo.DisplayName != "" {
		from = msg.SenderInfo.DisplayName
	}
	fmt.Printf("received %s from %s in %s: %q\n", msg.ID, from, pushed.ConversationID, msg.Content)

	return sendFrame(ctx, conn, proto.InboundTypeMessageRead, proto.AckData{
		MessageID:      msg.ID,
		ConversationID: pushed.ConversationID,
	})
}

type frame struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func sendFrame(ctx context.Context, conn *websocket.Conn, typ string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", typ, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: payload}); err != nil {
		return fmt.Errorf("send %s: %w", typ, err)
	}
	return nil
}

func waitFor(ctx context.Context, conn *websocket.Conn, event string) (frame, error) {
	for {
		var f frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			return f, fmt.Errorf("read: %w", err)
		}
		if f.Type == proto.OutboundTypeError && f.Error != nil {
			return f, fmt.Errorf("server error %s: %s", f.Error.Code, f.Error.Msg)
		}
		fmt.Printf("Received outbound: type=%s event=%s\n", f.Type, f.Event)
		if f.Event == event {
			return f, nil
		}
	}
}

func postMessage(ctx context.Context, addr, token, to, text string) error {
	body, err := json.Marshal(map[string]string{"recipientId": to, "content": text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, addr+"/api/messages/send", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("send message: unexpected status %s", resp.Status)
	}
	return nil
}
