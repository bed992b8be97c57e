package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"stock-chat/backend/internal/models"

	"github.com/urfave/cli/v3"
)

type HistoryCmd struct {
	flags *Flags

	limit int
}

// NewHistoryCmd creates the history command
func NewHistoryCmd(flags *Flags) *HistoryCmd {
	return &HistoryCmd{flags: flags}
}

// Register adds the history command to the application
func (cmd *HistoryCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "history",
		Usage:     "Print the recent messages of a symbol",
		UsageText: "chatcli history [--limit N] SYMBOL",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:        "limit",
				Aliases:     []string{"n"},
				Usage:       "number of messages to fetch",
				Value:       50,
				Destination: &cmd.limit,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *HistoryCmd) run(ctx context.Context, c *cli.Command) error {
	if c.NArg() < 1 {
		return errors.New("a symbol is required")
	}

	msgs, err := fetchHistory(ctx, http.DefaultClient, cmd.flags.Server, c.Args().First(), cmd.limit)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		_, _ = fmt.Fprintln(c.Root().Writer, infoColor("No messages yet"))
		return nil
	}
	printMessages(c.Root().Writer, msgs)
	return nil
}

type historyResponse struct {
	Topic    string           `json:"topic"`
	Messages []models.Message `json:"messages"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func fetchHistory(ctx context.Context, client *http.Client, server, topic string, limit int) ([]models.Message, error) {
	u, err := url.Parse(strings.TrimRight(server, "/") + "/api/v1/messages/" + url.PathEscape(topic))
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	if limit > 0 {
		u.RawQuery = url.Values{"limit": {strconv.Itoa(limit)}}.Encode()
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error.Message != "" {
			return nil, fmt.Errorf("%s: %s", body.Error.Code, body.Error.Message)
		}
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body historyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return body.Messages, nil
}
