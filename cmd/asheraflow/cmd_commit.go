package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spacalexandru02/asheraflow/pkg/object"
	"github.com/spacalexandru02/asheraflow/pkg/repo"
	"github.com/spf13/cobra"
)

func newCommitCmd() *cobra.Command {
	var message string
	var author string
	var amend bool
	var edit bool
	var reuseMessage string
	var reeditMessage string

	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Record changes to the repository",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			var h object.Hash
			if amend {
				_ = edit // no interactive editor: --edit keeps the original message
				reuseFrom := reuseMessage
				if reuseFrom == "" {
					reuseFrom = reeditMessage
				}
				h, err = r.Amend(message, reuseFrom)
			} else {
				if message == "" {
					return fmt.Errorf("commit message is required (-m)")
				}
				if author == "" {
					author = os.Getenv("USER")
					if author == "" {
						author = "unknown"
					}
				}
				h, err = r.Commit(message, author)
			}
			if err != nil {
				return err
			}

			// Determine current branch name for output.
			branch := "HEAD"
			head, err := r.Head()
			if err == nil && strings.HasPrefix(head, "refs/heads/") {
				branch = strings.TrimPrefix(head, "refs/heads/")
			}

			// Short hash: first 8 characters.
			short := string(h)
			if len(short) > 8 {
				short = short[:8]
			}

			out := cmd.OutOrStdout()
			if amend {
				fmt.Fprintf(out, "[%s %s] (amend)\n", branch, short)
			} else {
				fmt.Fprintf(out, "[%s %s] %s\n", branch, short, message)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "commit message")
	cmd.Flags().StringVar(&author, "author", "", "override author (default: $USER)")
	cmd.Flags().BoolVar(&amend, "amend", false, "replace the tip commit with the staged tree")
	cmd.Flags().BoolVar(&edit, "edit", false, "edit the message of an amended commit")
	cmd.Flags().StringVar(&reuseMessage, "reuse-message", "", "reuse the message from <ref> when amending")
	cmd.Flags().StringVar(&reeditMessage, "reedit-message", "", "reuse the message from <ref>, open for editing, when amending")

	return cmd
}
