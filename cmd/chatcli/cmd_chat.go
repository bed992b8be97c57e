package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"

	"stock-chat/backend/internal/models"
	proto "stock-chat/backend/pkg/ws"

	"github.com/gorilla/websocket"
	"github.com/urfave/cli/v3"
)

type ChatCmd struct {
	flags *Flags
}

// NewChatCmd creates the chat command
func NewChatCmd(flags *Flags) *ChatCmd {
	return &ChatCmd{flags: flags}
}

// Register adds the chat command to the application
func (cmd *ChatCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "chat",
		Usage:     "Join a symbol room and chat interactively",
		UsageText: "chatcli --token T chat SYMBOL",
		Description: `Joins the room of SYMBOL, prints its recent history and every new message.
Each line read from stdin is published to the current room.

Commands:
  /join SYMBOL     switch to another room
  /leave SYMBOL    stop receiving a room
  /history [N]     print the last N messages of the current room
  /quit            disconnect`,
		Action: cmd.run,
	})

	return app
}

func (cmd *ChatCmd) run(ctx context.Context, c *cli.Command) error {
	if c.NArg() < 1 {
		return errors.New("a symbol is required")
	}
	if cmd.flags.Token == "" {
		return errors.New("a token is required, see 'chatcli token'")
	}

	endpoint, err := wsURL(cmd.flags.Server, cmd.flags.Token)
	if err != nil {
		return err
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("connect: %w (status %d)", err, resp.StatusCode)
		}
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()

	s := &chatSession{conn: conn, out: c.Root().Writer, topic: strings.ToUpper(c.Args().First())}
	if err := s.send(proto.TypeJoin, proto.TopicRequest{Topic: s.topic}); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- s.readLoop() }()
	go s.inputLoop(os.Stdin)

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return nil
	}
}

type chatSession struct {
	conn  *websocket.Conn
	out   io.Writer
	mu    sync.Mutex
	topic string
}

func (s *chatSession) send(frameType string, content interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(proto.Frame{Type: frameType, Content: content})
}

func (s *chatSession) currentTopic() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.topic
}

func (s *chatSession) readLoop() error {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("connection closed: %w", err)
		}
		var env proto.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		s.render(env)
	}
}

func (s *chatSession) render(env proto.Envelope) {
	switch env.Type {
	case proto.TypeSession:
		var info proto.SessionInfo
		if env.DecodeContent(&info) == nil {
			_, _ = fmt.Fprintln(s.out, infoColor("connected as %s", info.Identity))
		}
	case proto.TypeJoined:
		var ack proto.TopicAck
		if env.DecodeContent(&ack) == nil {
			_, _ = fmt.Fprintln(s.out, infoColor("joined %s", ack.Topic))
		}
	case proto.TypeLeft:
		var ack proto.TopicAck
		if env.DecodeContent(&ack) == nil {
			_, _ = fmt.Fprintln(s.out, infoColor("left %s", ack.Topic))
		}
	case proto.TypeHistory:
		var batch proto.HistoryBatch
		if env.DecodeContent(&batch) == nil {
			printMessages(s.out, batch.Messages)
		}
	case proto.TypeMessage:
		var msg models.Message
		if env.DecodeContent(&msg) == nil {
			_, _ = fmt.Fprintln(s.out, formatMessage(msg))
		}
	case proto.TypeError:
		var body proto.ErrorBody
		if env.DecodeContent(&body) == nil {
			_, _ = fmt.Fprintln(s.out, errorColor("%s: %s", body.Code, body.Message))
		}
	}
}

func (s *chatSession) inputLoop(in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := s.handleLine(line); err != nil {
			if errors.Is(err, errQuit) {
				_ = s.close()
				return
			}
			_, _ = fmt.Fprintln(s.out, errorColor("%v", err))
		}
	}
	_ = s.close()
}

var errQuit = errors.New("quit")

func (s *chatSession) handleLine(line string) error {
	if !strings.HasPrefix(line, "/") {
		return s.send(proto.TypePublish, proto.PublishRequest{Topic: s.currentTopic(), Content: line})
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit":
		return errQuit
	case "/join":
		if len(fields) < 2 {
			return errors.New("usage: /join SYMBOL")
		}
		s.mu.Lock()
		s.topic = strings.ToUpper(fields[1])
		s.mu.Unlock()
		return s.send(proto.TypeJoin, proto.TopicRequest{Topic: fields[1]})
	case "/leave":
		if len(fields) < 2 {
			return errors.New("usage: /leave SYMBOL")
		}
		return s.send(proto.TypeLeave, proto.TopicRequest{Topic: fields[1]})
	case "/history":
		limit := 20
		if len(fields) > 1 {
			n, err := strconv.Atoi(fields[1])
			if err != nil || n < 1 {
				return errors.New("usage: /history [N]")
			}
			limit = n
		}
		return s.send(proto.TypeHistory, proto.HistoryRequest{Topic: s.currentTopic(), Limit: limit})
	default:
		return fmt.Errorf("unknown command %s", fields[0])
	}
}

func (s *chatSession) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// wsURL turns the HTTP base URL into the authenticated /ws endpoint
func wsURL(server, token string) (string, error) {
	u, err := url.Parse(strings.TrimRight(server, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path += "/ws"
	u.RawQuery = url.Values{"token": {token}}.Encode()
	return u.String(), nil
}
