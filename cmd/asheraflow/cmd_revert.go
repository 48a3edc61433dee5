package main

import (
	"fmt"

	"github.com/spacalexandru02/asheraflow/pkg/repo"
	"github.com/spf13/cobra"
)

func newRevertCmd() *cobra.Command {
	var doContinue bool
	var doAbort bool

	cmd := &cobra.Command{
		Use:   "revert <commit>",
		Short: "Revert an existing commit",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			switch {
			case doAbort:
				if err := r.AbortOperation(); err != nil {
					return err
				}
				fmt.Fprintln(out, "revert aborted")
				return nil
			case doContinue:
				h, err := r.ContinueOperation()
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "[%s] reverted\n", shortCommitHash(h))
				return nil
			}

			if len(args) != 1 {
				return fmt.Errorf("revert requires a commit (or --continue/--abort)")
			}

			report, err := r.Revert(args[0])
			if err != nil {
				return err
			}

			for _, f := range report.Files {
				printFileReport(out, f)
			}

			if report.HasConflicts {
				fmt.Fprintf(out, "revert completed with %d conflict", report.TotalConflicts)
				if report.TotalConflicts != 1 {
					fmt.Fprint(out, "s")
				}
				fmt.Fprintln(out)
				fmt.Fprintln(out, "fix conflicts and run asheraflow revert --continue")
				return repo.ErrMergeConflict
			}
			fmt.Fprintf(out, "[%s] reverted\n", shortCommitHash(report.MergeCommit))
			return nil
		},
	}

	cmd.Flags().BoolVar(&doContinue, "continue", false, "continue a revert after resolving conflicts")
	cmd.Flags().BoolVar(&doAbort, "abort", false, "abort an in-progress revert")

	return cmd
}

func shortCommitHash[T ~string](h T) string {
	s := string(h)
	if len(s) > 8 {
		return s[:8]
	}
	return s
}
