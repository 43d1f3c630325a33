// Package main implements the flowsplit CLI.
// It splits PHP variables into independent live ranges, removes unreachable
// code and reports reads of possibly uninitialized variables.
package main

import (
	"os"

	"github.com/l3aro/go-flowsplit/cmd/flowsplit/commands"
)

var (
	version   = "dev"
	buildTime = ""
)

func main() {
	commands.RootCmd.Version = version
	if buildTime != "" {
		commands.RootCmd.Version = version + " (" + buildTime + ")"
	}
	commands.RootCmd.SetVersionTemplate(`flowsplit version {{.Version}}
`)

	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
