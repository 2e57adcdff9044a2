// Command docdbctl inspects and edits a local docdb database.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "docdbctl: %v\n", err)
		os.Exit(1)
	}
}
