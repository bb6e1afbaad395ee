package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/anchorweave/anchorweave/internal/config"
)

var (
	configGlobal bool
	configList   bool
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Get and set configuration options",
	Long: `Configuration is read from two levels, repository overriding global:
- Global (~/.anchorweaveconfig)
- Node-local (.log/config)

Examples:
  anchorweave config user.name "Your Name"
  anchorweave config --global user.name "Your Name"
  anchorweave config --list
  anchorweave config user.name`,
	RunE: runConfig,
}

func init() {
	configCmd.Flags().BoolVar(&configGlobal, "global", false, "use the global config file")
	configCmd.Flags().BoolVar(&configList, "list", false, "list all configuration")
}

func runConfig(cmd *cobra.Command, args []string) error {
	if configList {
		return listConfig()
	}
	switch len(args) {
	case 1:
		return getConfigValue(args[0])
	case 2:
		return setConfigValue(args[0], args[1], configGlobal)
	default:
		return fmt.Errorf("invalid usage, see: anchorweave config --help")
	}
}

func listConfig() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	fmt.Printf("user.name = %s\n", orNotSet(cfg.User.Name))
	fmt.Printf("user.email = %s\n", orNotSet(cfg.User.Email))
	fmt.Printf("core.editor = %s\n", orNotSet(cfg.Core.Editor))
	fmt.Printf("core.pager = %s\n", orNotSet(cfg.Core.Pager))
	fmt.Printf("core.autoshelf = %t\n", cfg.Core.AutoShelf)
	fmt.Printf("core.large_file_threshold = %d\n", cfg.Core.LargeFileThreshold)
	fmt.Printf("core.stream_threshold = %d\n", cfg.Core.StreamThreshold)
	return nil
}

func orNotSet(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}

func getConfigValue(key string) error {
	value, err := config.GetValue(key)
	if err != nil {
		return err
	}
	fmt.Println(orNotSet(value))
	return nil
}

func setConfigValue(key, value string, global bool) error {
	if err := config.SetValue(key, value, global); err != nil {
		return err
	}
	scope := "node-local"
	if global {
		scope = "global"
	}
	fmt.Printf("set %s config: %s = %s\n", scope, key, value)
	return nil
}
