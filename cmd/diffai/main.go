package main

import (
	"fmt"
	"os"
)

// Exit codes: 0 means no differences, 1 means differences were found,
// 2 means the comparison itself failed.
const (
	exitNoDiff = 0
	exitDiff   = 1
	exitError  = 2
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitError)
	}
}
