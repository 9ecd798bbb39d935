// Command reelbot posts one video from a remote catalog to Instagram at each
// configured time of day, records what it posted, and reports to the
// operator through Telegram or ntfy.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	_ "time/tzdata"
)

// Set with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = ""
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
