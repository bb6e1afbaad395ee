package cli

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/anchorweave/anchorweave/internal/awerr"
	"github.com/anchorweave/anchorweave/internal/engine"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new node in the current directory",
	Long:  "Creates the .log directory structure (objects, objects/b, objects/m, subsections) for a new anchorweave node.",
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	logDir := filepath.Join(workDir, ".log")
	if _, err := os.Stat(logDir); err == nil {
		return fmt.Errorf("node already initialized at %s", logDir)
	}

	for _, sub := range []string{"objects", filepath.Join("objects", "b"), filepath.Join("objects", "m"), "subsections"} {
		if err := os.MkdirAll(filepath.Join(logDir, sub), 0o755); err != nil {
			return fmt.Errorf("create %s: %w", sub, err)
		}
	}

	if _, err := engine.Open(workDir); err != nil {
		return err
	}

	log.Println("anchorweave node initialized")
	return nil
}

func openNode() (*engine.Node, error) {
	workDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}
	if _, err := os.Stat(filepath.Join(workDir, ".log")); os.IsNotExist(err) {
		return nil, awerr.Wrap(awerr.ErrMissingReference, "not an anchorweave node (no .log directory)", nil)
	}
	return engine.Open(workDir)
}
