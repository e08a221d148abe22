// Package main is the entry point for nanoclaw-sidecar.
package main

import (
	"context"
	"fmt"
	"os"

	"nanoclaw-sidecar/cmd"
)

// run executes the CLI; without a command it starts the server.
func run(args []string) error {
	return cmd.Execute(context.Background(), args)
}

// main is the entry point.
func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
