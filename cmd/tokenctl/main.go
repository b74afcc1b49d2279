package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dmitrijs2005/tgfilestream/internal/tokenctl"
)

func main() {
	app := tokenctl.NewApp(os.Stdout, os.Stderr)

	if err := app.Run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if errors.Is(err, tokenctl.ErrUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
