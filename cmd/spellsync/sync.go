package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spellflare/spellsync/internal/cloud"
	"github.com/spellflare/spellsync/internal/daemon"
	"github.com/spellflare/spellsync/internal/endpoint"
	"github.com/spellflare/spellsync/internal/ui"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "sync",
	Short:   "Run the sync daemon for this device",
	Long: `Run this device until interrupted.

The primary listens for its companion on peer.listen (default :8787) and
serves /sync, /health and /metrics. With cloud.redis_addr set it also
reconciles with the cloud backup at start and every cloud.interval.

The companion dials peer.url and reconnects whenever the link drops.

Example usage:
  spellsync serve --role primary
  spellsync serve --role companion --peer-url ws://phone.local:8787/sync`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := daemon.New(cfg, nil)
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		fmt.Fprintf(cmd.OutOrStdout(), "%s Running as %s. Press Ctrl+C to stop...\n", ui.RenderAccent("⇄"), cfg.Role)
		return d.Start(ctx)
	},
}

var backupCmd = &cobra.Command{
	Use:     "backup",
	GroupID: "sync",
	Short:   "Reconcile the local profile with the cloud backup once",
	Long: `Compare the local profile with the cloud backup and keep the one with
more progress: more completed levels, then more coins, then the newer one.

A restored backup is marked pending so that the next "serve" sends it to
the companion.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		slot, err := openSlot()
		if err != nil {
			return err
		}
		defer slot.Close()

		return withLocal(func(ep *endpoint.Endpoint) error {
			bridge := cloud.NewBridge(slot, ep, &cloud.Config{Logger: cliLogger("cloud")})
			result, err := bridge.Reconcile(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Backup %s\n", ui.RenderPass("✓"), result)
			return nil
		})
	},
}

var resetCmd = &cobra.Command{
	Use:     "reset",
	GroupID: "advanced",
	Short:   "Delete the local profile (and with --cloud, the backup)",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		withCloud, _ := cmd.Flags().GetBool("cloud")
		force, _ := cmd.Flags().GetBool("force")
		if !force {
			return errors.New("reset destroys progress; pass --force to confirm")
		}

		var slot *cloud.RedisSlot
		if withCloud {
			var err error
			if slot, err = openSlot(); err != nil {
				return err
			}
			defer slot.Close()
		}

		return withLocal(func(ep *endpoint.Endpoint) error {
			if slot != nil {
				bridge := cloud.NewBridge(slot, ep, &cloud.Config{Logger: cliLogger("cloud")})
				if err := bridge.DeleteBackup(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s Cloud backup deleted\n", ui.RenderWarn("✗"))
			}
			if err := ep.Reset(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Local profile deleted\n", ui.RenderWarn("✗"))
			return nil
		})
	},
}

func openSlot() (*cloud.RedisSlot, error) {
	if !cfg.CloudEnabled() {
		return nil, errors.New("cloud backup is not configured (set cloud.redis_addr)")
	}
	rcfg := cloud.DefaultRedisConfig()
	rcfg.Addr = cfg.Cloud.RedisAddr
	rcfg.Password = cfg.Cloud.Password
	rcfg.DB = cfg.Cloud.DB
	rcfg.Account = cfg.Cloud.Account
	return cloud.NewRedisSlot(rcfg)
}

func init() {
	serveCmd.Flags().String("listen", "", "primary listen address (overrides peer.listen)")
	serveCmd.Flags().String("peer-url", "", "companion dial URL (overrides peer.url)")
	serveCmd.Flags().String("redis", "", "cloud backup Redis address (overrides cloud.redis_addr)")
	bindFlag(v, serveCmd.Flags(), "peer.listen", "listen")
	bindFlag(v, serveCmd.Flags(), "peer.url", "peer-url")
	bindFlag(v, serveCmd.Flags(), "cloud.redis_addr", "redis")

	resetCmd.Flags().Bool("cloud", false, "also delete the cloud backup")
	resetCmd.Flags().Bool("force", false, "confirm the reset")

	rootCmd.AddCommand(serveCmd, backupCmd, resetCmd)
}
