/*
main.go - Application entry point

PURPOSE:
  Runs the measure CLI. Every subcommand, including the HTTP server,
  lives in the cli package.

EXAMPLES:
  # Inspect a workbook
  measure headers ./Messungen.xlsx

  # Append one record
  measure append ./Messungen.xlsx --operator op-7 --set Charge_#=C-1 Breite=3,4

  # Serve the API with the SQLite store
  measure serve --store sqlite --port 3000

ENVIRONMENT:
  MEASURE_* variables override the config file; see config/config.go.

SEE ALSO:
  - cli/root.go: Command tree and wiring
  - cli/serve.go: HTTP server and graceful shutdown
*/
package main

import (
	"fmt"
	"os"

	"github.com/warp/measure-engine/cli"
)

func main() {
	if err := cli.RootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
