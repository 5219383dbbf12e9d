// Command spellsync keeps a learner's spelling-game profile in sync between
// a primary device, a companion device and a cloud backup.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/spellflare/spellsync/internal/config"
	"github.com/spellflare/spellsync/internal/logging"
	"github.com/spellflare/spellsync/internal/ui"
)

var (
	configFile string

	// v collects defaults, environment, the config file and bound flags.
	v = config.New()

	// cfg is loaded before every command runs.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "spellsync",
	Short: "Profile sync for the spelling game",
	Long: `spellsync keeps one learner's progress (grade, completed levels, coins)
consistent across a primary device, a companion device and a cloud backup.

Run "spellsync serve" on each device. The other commands edit the local
copy directly; a running or later "serve" pushes those edits to the peer.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(v, configFile)
		if err != nil {
			return err
		}
		cfg = loaded
		logging.SetVerbose(cfg.Log.Verbose || os.Getenv("SPELLSYNC_DEBUG") != "")
		ui.Init(cmd.OutOrStdout())
		return nil
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "profile", Title: "Profile commands:"},
		&cobra.Group{ID: "sync", Title: "Sync commands:"},
		&cobra.Group{ID: "advanced", Title: "Advanced:"},
	)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (default: spellsync.yaml in the data dir or cwd)")
	flags.String("data-dir", config.DefaultDataDir(), "directory holding the cache and purchase state")
	flags.String("role", "primary", "device role: primary or companion")
	flags.BoolP("verbose", "v", false, "enable debug logging")

	bindFlag(v, flags, "data_dir", "data-dir")
	bindFlag(v, flags, "role", "role")
	bindFlag(v, flags, "log.verbose", "verbose")
}

// bindFlag makes the flag override key when it is set on the command line.
func bindFlag(v *viper.Viper, flags *pflag.FlagSet, key, name string) {
	if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
		panic(err)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderFail("Error:"), err)
		os.Exit(1)
	}
}
