package main

import (
	"context"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"
)

func main() {
	err := newApp().Run(context.Background(), os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:                  "seentics-tracker",
		EnableShellCompletion: true,
		Usage:                 "Run seentics workflows against a headless page",
		Commands: []*cli.Command{
			NewSimulateCommand(),
			NewValidateCommand(),
		},
	}
}
