// telfence - a telnet command client that knows when the output ends.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"telfence/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "telfence: %v\n", err)
		os.Exit(1)
	}
}
