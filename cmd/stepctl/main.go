// Command stepctl is a command line client for OpenAI-compatible chat APIs.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/jg-phare/stepfun/pkg/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := cli.NewDefaultStepCtlCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
