package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/anchorweave/anchorweave/internal/refstore"
)

var (
	logBranch  string
	logOneline bool
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show commit history for a branch",
	RunE:  runLog,
}

func init() {
	logCmd.Flags().StringVar(&logBranch, "branch", refstore.Trunk, "branch to show history for")
	logCmd.Flags().BoolVar(&logOneline, "oneline", false, "one line per commit")
}

func runLog(cmd *cobra.Command, args []string) error {
	node, err := openNode()
	if err != nil {
		return err
	}
	entries, err := node.Log(logBranch)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("no commits yet")
		return nil
	}

	for i, e := range entries {
		if logOneline {
			fmt.Printf("%s %s\n", e.CommitHash[:12], e.VersionTag)
			continue
		}
		fmt.Printf("commit %s\n", e.CommitHash)
		fmt.Printf("type:   %s\n", e.Type)
		fmt.Printf("date:   %s\n", time.Unix(e.Timestamp, 0).UTC().Format(time.RFC3339))
		fmt.Printf("\n    %s\n", e.VersionTag)
		if i < len(entries)-1 {
			fmt.Println()
		}
	}
	return nil
}
