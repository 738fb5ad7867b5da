// Package main is the entry point for the ledger account-linking client.
package main

import (
	"os"

	"ledger/cmd/ledger/app"
	"ledger/internal/cli"
)

func main() {
	cli.LoadEnvFile()

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
