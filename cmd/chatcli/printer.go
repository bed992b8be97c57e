package main

import (
	"fmt"
	"io"

	"stock-chat/backend/internal/models"
)

// formatMessage renders one chat line as "15:04:05 [AAPL] alice: content"
func formatMessage(m models.Message) string {
	return fmt.Sprintf("%s %s %s: %s",
		faint(m.CreatedAt.Local().Format("15:04:05")),
		topicColor("["+m.Topic+"]"),
		authorColor(m.Author),
		m.Content,
	)
}

func printMessages(w io.Writer, msgs []models.Message) {
	for _, m := range msgs {
		_, _ = fmt.Fprintln(w, formatMessage(m))
	}
}
