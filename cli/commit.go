package cli

import (
	"fmt"
	"os"
	"os/user"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/anchorweave/anchorweave/internal/config"
	"github.com/anchorweave/anchorweave/internal/engine"
	"github.com/anchorweave/anchorweave/internal/refstore"
)

var (
	commitMessage string
	commitBranch  string
)

var commitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Snapshot the working tree as a new commit",
	RunE:  runCommit,
}

func init() {
	commitCmd.Flags().StringVarP(&commitMessage, "message", "m", "", "commit message / version tag (required)")
	commitCmd.Flags().StringVar(&commitBranch, "branch", refstore.Trunk, "branch to commit onto (trunk or a subsection name)")
}

func runCommit(cmd *cobra.Command, args []string) error {
	if commitMessage == "" {
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

	hashHex, err := node.Commit(engine.CommitOptions{
		Branch:    commitBranch,
		Message:   commitMessage,
		Author:    author,
		AuthorUID: authorUID,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		return err
	}

	fmt.Printf("committed %s on %s\n", hashHex, commitBranch)
	return nil
}

func resolveIdentity(cfg *config.Config) (string, int, error) {
	if cfg.User.Name != "" {
		return cfg.User.Name, cfg.User.UID, nil
	}
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		uid, _ := strconv.Atoi(os.Getenv("SUDO_UID"))
		return sudoUser, uid, nil
	}
	uid := os.Getuid()
	if u, err := user.LookupId(strconv.Itoa(uid)); err == nil {
		return u.Username, uid, nil
	}
	return "unknown", uid, nil
}
