package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jward/lineage/internal/client"
	"github.com/jward/lineage/internal/verify"
)

var flagLocal bool

var checkCmd = &cobra.Command{
	Use:   "check <file>...",
	Short: "Report overriding methods that do not call through to super",
	Long: `Checks that every method overriding an ancestor method calls super.<name>(),
unless the ancestor method is tagged #emptySuper. Class chains come from the
running server, or from the database with --local. Exits non-zero when any
diagnostic is reported.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().BoolVar(&flagLocal, "local", false, "read chains from the database instead of the server")
}

func runCheck(cmd *cobra.Command, args []string) error {
	var src verify.ChainSource
	if flagLocal {
		engine, err := openEngine()
		if err != nil {
			return outputError(cmd.OutOrStdout(), cmd.ErrOrStderr(), "check", err)
		}
		defer engine.Close()
		src = engine.Query()
	} else {
		src = client.New(cfg.Server.Addr)
	}
	checker := verify.NewChecker(src)

	diags := []verify.Diagnostic{}
	for _, arg := range args {
		path, err := resolveFileArg(arg)
		if err != nil {
			return outputError(cmd.OutOrStdout(), cmd.ErrOrStderr(), "check", err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return outputError(cmd.OutOrStdout(), cmd.ErrOrStderr(), "check", err)
		}
		found, err := checker.CheckFile(cmd.Context(), path, data)
		if err != nil {
			return outputError(cmd.OutOrStdout(), cmd.ErrOrStderr(), "check", err)
		}
		diags = append(diags, found...)
	}

	if err := outputResult(cmd.OutOrStdout(), CLIResult{Command: "check", Results: diags}); err != nil {
		return err
	}
	if len(diags) > 0 {
		errorHandled = true
		return fmt.Errorf("%d problem(s)", len(diags))
	}
	return nil
}
