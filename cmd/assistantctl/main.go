// Command assistantctl runs the estate assistant from a terminal: one-off
// questions, an interactive chat, schema migration and embedding backfill.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
