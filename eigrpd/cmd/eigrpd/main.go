package main

import (
	"fmt"
	"os"

	"github.com/amurg-ai/eigrpd/eigrpd/internal/cmd"
)

var version = "dev"

func main() {
	if err := cmd.NewRootCmd(version).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "eigrpd: %v\n", err)
		os.Exit(1)
	}
}
