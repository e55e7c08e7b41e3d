// Command cwkeyer drives the CW keyer core from the command line.
//
// Usage:
//
//	cwkeyer timing --wpm 25
//	cwkeyer config validate keyer.yaml
//	cwkeyer simulate --text "CQ DE K1ABC" --record cq.cwt
//	cwkeyer run --config keyer.yaml --watch
//	cwkeyer timeline inspect cq.cwt --samples 20
//	cwkeyer preset list --db presets.db
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/arloliu/cwkeyer/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(cli.GetExitCode(err))
	}
}
