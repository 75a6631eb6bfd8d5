// Command otcore serves and administers operational-transform objects.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/otcore/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "otcore:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
