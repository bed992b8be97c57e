package main

import "github.com/fatih/color"

var (
	faint       = color.New(color.Faint).SprintFunc()
	topicColor  = color.New(color.FgCyan, color.Bold).SprintFunc()
	authorColor = color.New(color.FgGreen).SprintFunc()
	infoColor   = color.New(color.FgYellow).SprintfFunc()
	errorColor  = color.New(color.FgRed).SprintfFunc()
)
