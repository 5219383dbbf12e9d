package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/spellflare/spellsync/internal/endpoint"
	"github.com/spellflare/spellsync/internal/merge"
	"github.com/spellflare/spellsync/internal/migrate"
	"github.com/spellflare/spellsync/internal/profile"
	"github.com/spellflare/spellsync/internal/ui"
)

var importCmd = &cobra.Command{
	Use:     "import <file>",
	GroupID: "advanced",
	Short:   "Merge a profile file into the local cache",
	Long: `Read a profile file written by any app version, upgrade it to the current
schema and merge it into the local copy.

Files may hold a full sync record or a bare profile. Profiles from before
coins existed receive the one-time retroactive grant.

--policy chooses the merge:
  lww       the newer record wins (peer sync rules, default)
  progress  more completed levels, then more coins, then newer (backup rules)`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		policy, _ := cmd.Flags().GetString("policy")
		var explain merge.Explainer
		switch policy {
		case "lww":
			explain = merge.ExplainLWW
		case "progress":
			explain = merge.ExplainResolveConflict
		default:
			return fmt.Errorf("unknown policy %q (want lww or progress)", policy)
		}

		return withLocal(func(ep *endpoint.Endpoint) error {
			imported, report, err := migrate.ReadFile(args[0], migrate.ImportOptions{DeviceIdentifier: ep.DeviceID()})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if report.Granted {
				fmt.Fprintf(out, "%s Upgraded from schema %d, granted %d coins\n",
					ui.RenderAccent("↑"), report.FromVersion, report.CoinsGranted)
			}

			d, err := ep.ReconcileWith(cmd.Context(), imported, explain)
			if err != nil {
				return err
			}
			if d.Side == merge.SideRemote {
				fmt.Fprintf(out, "%s Imported %s (%s)\n", ui.RenderPass("✓"), imported.Profile.Name, d.Rule)
			} else {
				fmt.Fprintf(out, "%s Kept the local profile (%s)\n", ui.RenderWarn("="), d.Rule)
			}
			return nil
		})
	},
}

var exportCmd = &cobra.Command{
	Use:     "export",
	GroupID: "advanced",
	Short:   "Write the cached profile as JSON, YAML or TOML",
	Long: `Export the cached profile. JSON output is the sync record itself and can be
read back with "spellsync import". YAML and TOML are for reading.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")

		return withLocal(func(ep *endpoint.Endpoint) error {
			s, err := ep.CurrentProfile(cmd.Context())
			if err != nil {
				return err
			}

			if format == "json" && output != "" {
				return profile.WriteFile(output, s)
			}

			data, err := encodeProfile(s, format)
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", output, err)
				}
				defer f.Close()
				w = f
			}
			_, err = w.Write(data)
			return err
		})
	},
}

// exportView is the human-oriented layout used for YAML and TOML. Grades
// are string keys because TOML tables cannot have integer keys.
type exportView struct {
	Name             string           `yaml:"name" toml:"name"`
	Grade            int              `yaml:"grade" toml:"grade"`
	TotalCoins       int              `yaml:"totalCoins" toml:"totalCoins"`
	WatchUnlocked    bool             `yaml:"watchUnlocked" toml:"watchUnlocked"`
	LastModified     time.Time        `yaml:"lastModified" toml:"lastModified"`
	DeviceIdentifier string           `yaml:"deviceIdentifier" toml:"deviceIdentifier"`
	SchemaVersion    int              `yaml:"schemaVersion" toml:"schemaVersion"`
	Grades           map[string]grade `yaml:"grades" toml:"grades"`
}

type grade struct {
	CurrentLevel    int   `yaml:"currentLevel" toml:"currentLevel"`
	CompletedLevels []int `yaml:"completedLevels" toml:"completedLevels"`
}

func newExportView(s profile.Syncable) exportView {
	view := exportView{
		Name:             s.Profile.Name,
		Grade:            s.Profile.Grade,
		TotalCoins:       s.Profile.TotalCoins,
		WatchUnlocked:    s.IsWatchUnlocked,
		LastModified:     s.LastModified.UTC(),
		DeviceIdentifier: s.DeviceIdentifier,
		SchemaVersion:    s.SchemaVersion,
		Grades:           make(map[string]grade, profile.MaxGrade),
	}

	grades := make([]int, 0, len(s.Profile.CurrentLevelByGrade))
	for g := range s.Profile.CurrentLevelByGrade {
		grades = append(grades, g)
	}
	sort.Ints(grades)
	for _, g := range grades {
		completed := s.Profile.CompletedLevelsByGrade[g].Sorted()
		if completed == nil {
			completed = []int{}
		}
		view.Grades[strconv.Itoa(g)] = grade{
			CurrentLevel:    s.Profile.CurrentLevelByGrade[g],
			CompletedLevels: completed,
		}
	}
	return view
}

func encodeProfile(s profile.Syncable, format string) ([]byte, error) {
	switch format {
	case "json":
		data, err := s.Encode()
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	case "yaml":
		return yaml.Marshal(newExportView(s))
	case "toml":
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(newExportView(s)); err != nil {
			return nil, fmt.Errorf("failed to encode toml: %w", err)
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("unknown format %q (want json, yaml or toml)", format)
}

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "advanced",
	Short:   "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := cfg.YAML()
		if err != nil {
			return err
		}
		if used := v.ConfigFileUsed(); used != "" {
			fmt.Fprintln(cmd.OutOrStdout(), ui.RenderMuted("# from "+used))
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func init() {
	importCmd.Flags().String("policy", "lww", "merge policy: lww or progress")
	exportCmd.Flags().StringP("format", "f", "json", "output format: json, yaml or toml")
	exportCmd.Flags().StringP("output", "o", "", "write to file instead of stdout")

	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(importCmd, exportCmd, configCmd)
}
