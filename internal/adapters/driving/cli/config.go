package cli

import (
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Read and write settings",
	Long: `Reads and writes settings in config.toml. Keys use dot notation, for
example index.backend or embedding.provider. Environment variables with
the HOMEQA_ prefix override the file at startup.`,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a setting",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if configStore == nil {
			return errConfigNotConfigured
		}
		if err := configStore.Set(args[0], parseConfigValue(args[1])); err != nil {
			return err
		}
		cmd.Printf("%s = %s\n", args[0], args[1])
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if configStore == nil {
			return errConfigNotConfigured
		}
		v, ok := configStore.Get(args[0])
		if !ok {
			cmd.Printf("%s is not set\n", args[0])
			return nil
		}
		cmd.Println(cast.ToString(v))
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print every stored setting",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if configStore == nil {
			return errConfigNotConfigured
		}
		for _, k := range configStore.Keys() {
			cmd.Printf("%s = %s\n", k, configStore.GetString(k))
		}
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the settings file location",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if configStore == nil {
			return errConfigNotConfigured
		}
		cmd.Println(configStore.Path())
		return nil
	},
}

func init() {
	configCmd.AddCommand(configSetCmd, configGetCmd, configListCmd, configPathCmd)
	rootCmd.AddCommand(configCmd)
}

// parseConfigValue stores integers and booleans with their TOML types.
func parseConfigValue(s string) any {
	if n, err := cast.ToInt64E(s); err == nil {
		return n
	}
	switch s {
	case "true", "false":
		return cast.ToBool(s)
	}
	return s
}
