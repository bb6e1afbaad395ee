package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/anchorweave/anchorweave/internal/refstore"
)

var (
	rebuildBranch string
	rebuildTag    string
	rebuildOld    string
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Apply the diff between an old commit and a target tag onto the working tree",
	Long: `Rebuild requires an explicit old commit to diff from: it never
reads the target branch's own current HEAD as a fallback base, since that
behavior is unreliable when the working tree has diverged from it.`,
	RunE: runRebuild,
}

func init() {
	rebuildCmd.Flags().StringVar(&rebuildBranch, "branch", refstore.Trunk, "branch whose HEAD is updated")
	rebuildCmd.Flags().StringVar(&rebuildTag, "tag", "LATEST_HEAD", "version tag to rebuild to")
	rebuildCmd.Flags().StringVar(&rebuildOld, "old-commit", "", "commit hash to diff from (required)")
	rebuildCmd.MarkFlagRequired("old-commit")
}

func runRebuild(cmd *cobra.Command, args []string) error {
	node, err := openNode()
	if err != nil {
		return err
	}
	result, err := node.Rebuild(rebuildBranch, rebuildOld, rebuildTag)
	if err != nil {
		return err
	}
	if result.TreesEqual {
		fmt.Println("working tree already matches target; head updated")
		return nil
	}
	fmt.Printf("rebuilt working tree to %s (tree %s)\n", result.NewHead, result.NewTree)
	return nil
}
