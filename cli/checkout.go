package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/anchorweave/anchorweave/internal/refstore"
)

var (
	checkoutBranch string
	checkoutTag    string
)

var checkoutCmd = &cobra.Command{
	Use:   "checkout <path>",
	Short: "Restore a single file from a tagged commit",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheckout,
}

func init() {
	checkoutCmd.Flags().StringVar(&checkoutBranch, "branch", refstore.Trunk, "branch to read the commit from")
	checkoutCmd.Flags().StringVar(&checkoutTag, "tag", "LATEST_HEAD", "version tag to resolve (default: current HEAD)")
}

func runCheckout(cmd *cobra.Command, args []string) error {
	node, err := openNode()
	if err != nil {
		return err
	}
	if err := node.Checkout(checkoutBranch, checkoutTag, args[0]); err != nil {
		return err
	}
	fmt.Printf("checked out %s\n", args[0])
	return nil
}
