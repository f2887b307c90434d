package main

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/openmaw-ai/openmaw/internal/config"
	"github.com/openmaw-ai/openmaw/internal/convo"
	"github.com/openmaw-ai/openmaw/internal/events"
	"github.com/openmaw-ai/openmaw/internal/plugins"
	"github.com/openmaw-ai/openmaw/internal/registry"
	"github.com/openmaw-ai/openmaw/internal/secrets"
)

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "Manage installed plugins",
}

func init() {
	pluginsCmd.AddCommand(pluginsListCmd)
	pluginsCmd.AddCommand(pluginsEnableCmd)
	pluginsCmd.AddCommand(pluginsDisableCmd)
	pluginsCmd.AddCommand(pluginsInstallCmd)
	pluginsCmd.AddCommand(pluginsUninstallCmd)
}

// openLoader builds a loader over the configured plugins directory.
func openLoader(cfg *config.Config) (*plugins.Loader, error) {
	loader := plugins.NewLoader(cfg.PluginsDir, cfg.DataDir, events.NewBus())
	if err := loader.Reload(); err != nil {
		return nil, err
	}
	return loader, nil
}

var pluginsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed plugins",
	RunE: func(cmd *cobra.Command, args []string) error {
		loader, err := openLoader(config.Load())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tVERSION\tTRIGGER\tEXECUTION\tENABLED")
		for _, p := range loader.Plugins() {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%v\n",
				p.Manifest.ID,
				p.Manifest.Name,
				p.Manifest.Version,
				p.Manifest.Trigger.Type,
				p.Manifest.Execution.Type,
				p.Enabled,
			)
		}
		return w.Flush()
	},
}

var pluginsEnableCmd = &cobra.Command{
	Use:   "enable <id>",
	Short: "Enable a plugin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setPluginEnabled(args[0], true)
	},
}

var pluginsDisableCmd = &cobra.Command{
	Use:   "disable <id>",
	Short: "Disable a plugin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setPluginEnabled(args[0], false)
	},
}

func setPluginEnabled(id string, on bool) error {
	loader, err := openLoader(config.Load())
	if err != nil {
		return err
	}
	if _, ok := loader.Get(id); !ok {
		return fmt.Errorf("plugin %q is not installed", id)
	}
	return loader.SetEnabled(id, on)
}

var pluginsInstallCmd = &cobra.Command{
	Use:   "install <url>",
	Short: "Install a plugin from a manifest, archive, or repository URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		loader, err := openLoader(cfg)
		if err != nil {
			return err
		}
		source, err := registry.ParseInstallURL(args[0])
		if err != nil {
			return err
		}

		id, err := registry.NewInstaller(cfg.PluginsDir, loader).Install(cmd.Context(), source)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "installed %s\n", id)
		return nil
	},
}

var pluginsUninstallCmd = &cobra.Command{
	Use:   "uninstall <id>",
	Short: "Remove a plugin, its settings, secrets, and data",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		loader, err := openLoader(cfg)
		if err != nil {
			return err
		}
		id := args[0]
		if _, ok := loader.Get(id); !ok {
			return fmt.Errorf("plugin %q is not installed", id)
		}

		store := secrets.NewFileStore(filepath.Join(cfg.DataDir, "secrets.json"))
		settings := plugins.NewSettings(cfg.DataDir, store)
		if err := loader.Uninstall(id, settings, convo.NewManager()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "uninstalled %s\n", id)
		return nil
	},
}
