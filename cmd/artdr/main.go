// Command artdr runs dimensionality-reduction experiments over precomputed
// art embeddings.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/artdr/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		// Commands report their own errors; cobra usage errors are not.
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(cli.ExitCommandError)
		}
		os.Exit(exitErr.Code)
	}
}
