package main

import (
	"fmt"
	"os"

	"devrank/logger"
)

func main() {
	defer logger.Sync()

	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
