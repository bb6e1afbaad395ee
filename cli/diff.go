package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var diffCmd = &cobra.Command{
	Use:   "diff <from-commit> <to-commit>",
	Short: "Show tree differences between two commits, including subdirectories",
	Args:  cobra.ExactArgs(2),
	RunE:  runDiff,
}

func runDiff(cmd *cobra.Command, args []string) error {
	node, err := openNode()
	if err != nil {
		return err
	}
	entries, err := node.Diff(args[0], args[1])
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("no differences")
		return nil
	}
	for _, e := range entries {
		switch e.Status {
		case "added":
			fmt.Printf("+ %s\n", e.Name)
		case "removed":
			fmt.Printf("- %s\n", e.Name)
		case "binary-differ":
			fmt.Printf("~ %s (binary files differ)\n", e.Name)
		case "modified":
			fmt.Printf("~ %s (modified)\n", e.Name)
			for _, op := range e.Lines {
				switch op.Kind {
				case "add":
					fmt.Printf("  +  %s\n", op.Text)
				case "del":
					fmt.Printf("  -  %s\n", op.Text)
				default:
					fmt.Printf("     %s\n", op.Text)
				}
			}
		default:
			fmt.Printf("~ %s (%s)\n", e.Name, e.Status)
		}
	}
	return nil
}
