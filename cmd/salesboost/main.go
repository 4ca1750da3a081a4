// Command salesboost runs the storefront merchandising engine against a
// host page and validates campaign configs.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/salesboost/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()

	// Commands report their own failures; only flag and argument errors
	// from cobra reach here unprinted.
	var exitErr *cli.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
