// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ManuGH/querygate/internal/guard"
)

// errRejected makes the process exit non-zero without printing twice.
var errRejected = errors.New("statement rejected")

func newCheckCmd(opts *rootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "check [SQL]",
		Short: "Validate a statement against the read-only policy",
		Long: `Runs the guard offline against one statement using the configured
allowlist, deny list and row cap. Prints the canonical statement when
accepted, or the rejection code and detail. Nothing is executed.

The statement is read from the argument, from --file, or from stdin.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readStatement(cmd.InOrStdin(), args, file)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			policy, err := guard.NewPolicy(cfg.Policy.AllowedTables, cfg.Policy.ForbiddenFunctions, cfg.Policy.MaxRowLimit)
			if err != nil {
				return err
			}

			v := guard.New(policy).Validate(text)
			out := cmd.OutOrStdout()
			if v.Accepted() {
				_, _ = fmt.Fprintf(out, "accepted\n%s\n", v.SQL)
				return nil
			}
			_, _ = fmt.Fprintf(out, "rejected: %s\n", v.Rejection.Error())
			cmd.SilenceErrors = true
			return errRejected
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "read the statement from a file")
	return cmd
}

func readStatement(stdin io.Reader, args []string, file string) (string, error) {
	var text string
	switch {
	case len(args) == 1:
		text = args[0]
	case file != "":
		b, err := os.ReadFile(file) // #nosec G304 -- operator-supplied path
		if err != nil {
			return "", err
		}
		text = string(b)
	default:
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", err
		}
		text = string(b)
	}
	if strings.TrimSpace(text) == "" {
		return "", errors.New("no statement given")
	}
	return text, nil
}
