package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var addSubsectionCmd = &cobra.Command{
	Use:   "add-subsection <name>",
	Short: "Create a new subsection anchored at the trunk's current HEAD",
	Args:  cobra.ExactArgs(1),
	RunE:  runAddSubsection,
}

func runAddSubsection(cmd *cobra.Command, args []string) error {
	node, err := openNode()
	if err != nil {
		return err
	}
	if err := node.AddSubsection(args[0]); err != nil {
		return err
	}
	fmt.Printf("created subsection %s\n", args[0])
	return nil
}
