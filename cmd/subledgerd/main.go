// Command subledgerd serves the subledger HTTP API and runs one-shot
// maintenance tasks against the configured store.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
