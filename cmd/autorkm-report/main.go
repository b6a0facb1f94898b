// Command autorkm-report builds the AUTO-RKM summaries from a complaint
// workbook (or the configured Google Sheet) and prints them as tables.
package main

import (
	"context"
	"fmt"
	"os"

	"autorkm/internal/cli"
)

func main() {
	cli.LoadEnvFile()
	if err := newRootCommand(os.Stdout, os.Stderr).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
