// Package cli wires cobra subcommands onto internal/engine.Node. Root
// command structure and the Execute() entry point follow the teacher's
// cli/cli.go; terminal coloring is not carried over (ORIGINAL SPEC places
// it out of scope, see DESIGN.md).
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const Version = "0.1.0"

var version bool

var rootCmd = &cobra.Command{
	Use:   "anchorweave",
	Short: "anchorweave is a content-addressable snapshot/versioning engine",
	Long:  `anchorweave manages a local directory's history as content-addressed blobs, deltas, and trees, with trunk/subsection branching and promotion by three-way merge.`,
	Run: func(cmd *cobra.Command, args []string) {
		if version {
			fmt.Printf("anchorweave version %s\n", Version)
			os.Exit(0)
		}
		cmd.Help()
	},
}

// Execute runs the root command; it is the sole entry point cmd/anchorweave
// calls.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolVar(&version, "version", false, "print the version and exit")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(commitCmd)
	rootCmd.AddCommand(checkoutCmd)
	rootCmd.AddCommand(rebuildCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(addSubsectionCmd)
	rootCmd.AddCommand(promoteCmd)
	rootCmd.AddCommand(configCmd)
}
