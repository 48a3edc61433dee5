package main

import (
	"github.com/spacalexandru02/asheraflow/pkg/repo"
	"github.com/spf13/cobra"
)

func newResetCmd() *cobra.Command {
	var soft, mixed, hard bool

	cmd := &cobra.Command{
		Use:   "reset [commit] [-- paths...]",
		Short: "Move HEAD and optionally the index/working tree to a commit",
		Long: `reset moves the current branch to <commit> (default HEAD).

--soft  moves HEAD only.
--mixed moves HEAD and rewrites the index (default).
--hard  moves HEAD, rewrites the index, and overwrites tracked working-tree files.

When paths are given, reset never moves HEAD: it only restores those index
entries to their state in <commit>.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			mode := repo.ResetMixed
			switch {
			case soft:
				mode = repo.ResetSoft
			case hard:
				mode = repo.ResetHard
			case mixed:
				mode = repo.ResetMixed
			}

			commitRef := "HEAD"
			paths := args
			if len(args) > 0 {
				if _, err := r.ResolveRef("refs/heads/" + args[0]); err == nil {
					commitRef = args[0]
					paths = args[1:]
				} else if looksLikeCommitRef(r, args[0]) {
					commitRef = args[0]
					paths = args[1:]
				}
			}

			return r.Reset(commitRef, mode, paths)
		},
	}

	cmd.Flags().BoolVar(&soft, "soft", false, "move HEAD only")
	cmd.Flags().BoolVar(&mixed, "mixed", false, "move HEAD and rewrite the index (default)")
	cmd.Flags().BoolVar(&hard, "hard", false, "move HEAD, index, and working tree")

	return cmd
}

// looksLikeCommitRef reports whether arg resolves to a commit object, so the
// reset command can distinguish "reset <commit> -- <paths>" from a bare
// path-limited "reset <paths>" invocation.
func looksLikeCommitRef(r *repo.Repo, arg string) bool {
	if arg == "HEAD" {
		return true
	}
	return r.IsCommitHash(arg)
}
