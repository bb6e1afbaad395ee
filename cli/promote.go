package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/anchorweave/anchorweave/internal/engine"
)

var (
	promoteMessage string
	promoteDelete  bool
)

var promoteCmd = &cobra.Command{
	Use:   "promote <subsection>",
	Short: "Merge a subsection's HEAD onto the trunk via three-way merge",
	Args:  cobra.ExactArgs(1),
	RunE:  runPromote,
}

func init() {
	promoteCmd.Flags().StringVarP(&promoteMessage, "message", "m", "", "trunk commit message (required)")
	promoteCmd.Flags().BoolVar(&promoteDelete, "delete", false, "delete the subsection after promotion")
}

func runPromote(cmd *cobra.Command, args []string) error {
	if promoteMessage == "" {
		return fmt.Errorf("--message is required")
	}
	node, err := openNode()
	if err != nil {
		return err
	}
	author, authorUID, err := resolveIdentity(node.Config)
	if err != nil {
		return err
	}
	result, err := node.Promote(engine.PromoteOptions{
		Subsection: args[0],
		Message:    promoteMessage,
		Author:     author,
		AuthorUID:  authorUID,
		Timestamp:  time.Now().Unix(),
		Delete:     promoteDelete,
	})
	if err != nil {
		return err
	}
	fmt.Printf("promoted %s onto trunk as %s\n", args[0], result.NewCommit)
	return nil
}
