package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/mark3labs/netbox2st2/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		if !errors.Is(err, cli.ErrActionFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
