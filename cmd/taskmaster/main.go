// Package main is the entry point for the taskmaster CLI.
// taskmaster submits a Kubernetes Job and follows it until it settles.
package main

import (
	"os"

	"taskmaster/cmd/taskmaster/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
