package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stock-chat/backend/pkg/jwt"

	"github.com/urfave/cli/v3"
)

type TokenCmd struct {
	flags *Flags

	secret string
	expiry time.Duration
}

// NewTokenCmd creates the token command
func NewTokenCmd(flags *Flags) *TokenCmd {
	return &TokenCmd{flags: flags}
}

// Register adds the token command to the application
func (cmd *TokenCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "token",
		Usage:     "Mint a development token for a username",
		UsageText: "chatcli token [--secret S] USERNAME",
		Description: `Signs a token with the server's JWT secret so a local backend accepts it.

Examples:
  export CHAT_TOKEN=$(chatcli token alice)`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "secret",
				Usage:       "HMAC secret shared with the server",
				Sources:     cli.EnvVars("JWT_SECRET"),
				Value:       "default-jwt-secret-do-not-use-in-production",
				Destination: &cmd.secret,
			},
			&cli.DurationFlag{
				Name:        "expiry",
				Usage:       "token lifetime",
				Value:       24 * time.Hour,
				Destination: &cmd.expiry,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *TokenCmd) run(_ context.Context, c *cli.Command) error {
	if c.NArg() < 1 {
		return errors.New("a username is required")
	}
	token, err := jwt.NewService(cmd.secret, cmd.expiry).GenerateToken(c.Args().First())
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.Root().Writer, token)
	return err
}
