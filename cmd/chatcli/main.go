package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"
)

var version = "dev"

// Flags holds the global options shared by every command
type Flags struct {
	Server  string
	Token   string
	NoColor bool
}

func main() {
	flags := &Flags{}

	app := &cli.Command{
		Name:      "chatcli",
		Usage:     "Terminal client for the stock chat rooms",
		UsageText: "chatcli [global options] command [command options]",
		Version:   version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "server",
				Aliases:     []string{"s"},
				Usage:       "base URL of the chat backend",
				Sources:     cli.EnvVars("CHAT_SERVER"),
				Value:       "http://localhost:5001",
				Destination: &flags.Server,
			},
			&cli.StringFlag{
				Name:        "token",
				Aliases:     []string{"t"},
				Usage:       "bearer token used for the WebSocket connection",
				Sources:     cli.EnvVars("CHAT_TOKEN"),
				Destination: &flags.Token,
			},
			&cli.BoolFlag{
				Name:        "no-color",
				Usage:       "disable colored output",
				Sources:     cli.EnvVars("NO_COLOR"),
				Destination: &flags.NoColor,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			if flags.NoColor {
				color.NoColor = true
			}
			return ctx, nil
		},
	}

	app = NewHistoryCmd(flags).Register(app)
	app = NewChatCmd(flags).Register(app)
	app = NewTokenCmd(flags).Register(app)

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error: %v", err))
		os.Exit(1)
	}
}
