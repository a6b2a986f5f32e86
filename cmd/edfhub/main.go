// Command edfhub runs the EDF data access service: a cache-backed reader
// and DDA runner for European Data Format biomedical recordings.
package main

import (
	"os"

	"edfhub/cmd/edfhub/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
