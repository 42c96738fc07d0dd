package main

import (
	"fmt"
	"os"

	"claims-reconciliation-service/cmd/reconciler/cmd"
	apperrors "claims-reconciliation-service/pkg/errors"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	// Set version information
	cmd.SetVersionInfo(version, commit, date)

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(apperrors.GetExitCode(err))
	}
}
