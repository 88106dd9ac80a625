// Command loaddock moves batches of bucket objects into warehouse tables:
// it lists a source bucket, stages the objects the processing ledger has
// not seen, promotes them into the final table and records them as done.
package main

import (
	"fmt"
	"os"

	"github.com/loaddock/loaddock/internal/cli"
)

func main() {
	if err := cli.Run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
