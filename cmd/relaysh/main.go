package main

//go-build: CGO_ENABLED=0

import (
	"github.com/robotalks/relay.go/pkg/board"
	"github.com/robotalks/relay.go/pkg/cli/sh"
)

func init() {
	board.SetupFlags()
}

func main() {
	sh.Main()
}
