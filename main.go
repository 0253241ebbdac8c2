// Copyright (c) Mystira. All rights reserved.
// Licensed under the MIT License.

package main

import (
	"context"
	"io"
	"log"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/mystira/devhub/internal/cmd"
	"github.com/spf13/pflag"
)

func init() {
	// color auto-detects most terminals, FORCE_COLOR=1 overrides for shells
	// that capture output through a pipe.
	forceColorVal, has := os.LookupEnv("FORCE_COLOR")
	if has && forceColorVal == "1" {
		color.NoColor = false
	} else if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		color.NoColor = true
	}
}

func main() {
	ctx := context.Background()

	restoreColorMode := colorable.EnableColorsStdout(nil)
	defer restoreColorMode()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if !isDebugEnabled() {
		log.SetOutput(io.Discard)
	}

	rootCmd := cmd.NewRootCommand()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

// isDebugEnabled checks to see if `--debug` was passed with a truthy
// value.
func isDebugEnabled() bool {
	debug := false
	help := false
	flags := pflag.NewFlagSet("", pflag.ContinueOnError)

	// The full command line carries flags this flag set does not define,
	// keep parsing past them instead of failing.
	flags.ParseErrorsWhitelist.UnknownFlags = true
	flags.BoolVar(&debug, "debug", false, "")

	// pflag treats "help" as special and if you don't define a help flag
	// returns ErrHelp from Parse when `--help` is on the command line. Add an
	// explicit help parameter (which we ignore) so pflag doesn't fail in this
	// case.
	flags.BoolVarP(&help, "help", "h", false, "")

	if err := flags.Parse(os.Args[1:]); err != nil {
		log.Printf("could not parse flags: %v", err)
	}

	return debug
}
