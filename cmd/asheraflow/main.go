package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spacalexandru02/asheraflow/pkg/repo"
	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "asheraflow",
		Short: "Content-addressable version control engine",
	}

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInitCmd())
	root.AddCommand(newAddCmd())
	root.AddCommand(newRmCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newCommitCmd())
	root.AddCommand(newLogCmd())
	root.AddCommand(newShowCmd())
	root.AddCommand(newDiffCmd())
	root.AddCommand(newBranchCmd())
	root.AddCommand(newCheckoutCmd())
	root.AddCommand(newResetCmd())
	root.AddCommand(newMergeCmd())
	root.AddCommand(newRevertCmd())
	root.AddCommand(newCherryPickCmd())
	root.AddCommand(newReflogCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeForError(err))
	}
}

// exitCodeForError maps a command failure to the process exit code: 1 for
// an operation the engine declined to perform (conflict, dirty tree,
// already up to date), 128 for a usage or fatal repository error.
func exitCodeForError(err error) int {
	declined := []error{
		repo.ErrDirtyWorkingTree,
		repo.ErrUntrackedOverwrite,
		repo.ErrMergeConflict,
		repo.ErrOperationInProgress,
		repo.ErrAlreadyUpToDate,
	}
	for _, d := range declined {
		if errors.Is(err, d) {
			return 1
		}
	}
	return 128
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("asheraflow 0.1.0-dev")
		},
	}
}
