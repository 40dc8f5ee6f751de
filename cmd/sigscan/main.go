package main

import (
	"os"

	"github.com/go-sigscan/sigscan/cmd/sigscan/cmds"
)

func main() {
	if err := cmds.New().Execute(); err != nil {
		os.Exit(1)
	}
}
