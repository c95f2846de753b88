// vibeteam-mcp: an MCP server that exposes an AI engineering team as tools
// and retries transient upstream failures with exponential backoff.
//
// Usage:
//
//	vibeteam-mcp serve                  # stdio transport
//	vibeteam-mcp serve --transport tcp  # line-delimited JSON over TCP
//	vibeteam-mcp version
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/vibeteam/vibeteam-mcp/internal/config"
	"github.com/vibeteam/vibeteam-mcp/internal/server"
)

// Exit codes.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// exitError carries a process exit code.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func configError(err error) error  { return &exitError{code: exitConfig, err: err} }
func runtimeError(err error) error { return &exitError{code: exitRuntime, err: err} }

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdin, stdout, stderr)
	cmd.SetArgs(args)

	err := cmd.Execute()
	if err == nil {
		return exitOK
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)

	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	// Anything cobra rejects before running (unknown flag, bad value).
	return exitConfig
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "vibeteam-mcp",
		Short: "MCP server for an AI engineering team with automatic retries",
		Long: `vibeteam-mcp serves MCP tools backed by a coding agent CLI.
Transient failures such as rate limits, usage limits, timeouts and overloaded
upstreams are retried with exponential backoff and jitter.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().SortFlags = false
	config.RegisterFlags(root.PersistentFlags())

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, stdin, stdout, stderr)
		},
	}

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s v%s\n", server.Name, server.Version)
		},
	}

	root.AddCommand(serve, version)
	return root
}
