package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/spellflare/spellsync/internal/endpoint"
	"github.com/spellflare/spellsync/internal/profile"
	"github.com/spellflare/spellsync/internal/ui"
)

var initCmd = &cobra.Command{
	Use:     "init",
	GroupID: "profile",
	Short:   "Create the learner profile on this device",
	Long: `Create a new profile. Without --name an interactive form asks for the
learner's name and grade.

Run this on the primary. A companion receives the profile when it first
connects.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		grade, _ := cmd.Flags().GetInt("grade")

		if !cmd.Flags().Changed("name") {
			if !ui.IsTerminal(os.Stdin) {
				return errors.New("--name is required when not running in a terminal")
			}
			if err := askProfile(&name, &grade); err != nil {
				return err
			}
		}
		if err := validateName(name); err != nil {
			return err
		}

		return withLocal(func(ep *endpoint.Endpoint) error {
			s, err := ep.CreateProfile(cmd.Context(), name, grade)
			if errors.Is(err, endpoint.ErrProfileExists) {
				return fmt.Errorf("a profile already exists here (use \"spellsync reset\" first)")
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Created profile for %s (grade %d)\n",
				ui.RenderPass("✓"), s.Profile.Name, s.Profile.Grade)
			return nil
		})
	},
}

func askProfile(name *string, grade *int) error {
	grades := make([]huh.Option[int], 0, profile.MaxGrade)
	for g := profile.MinGrade; g <= profile.MaxGrade; g++ {
		grades = append(grades, huh.NewOption("Grade "+strconv.Itoa(g), g))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Learner name").
				Value(name).
				Validate(validateName),
			huh.NewSelect[int]().
				Title("Grade").
				Options(grades...).
				Value(grade),
		),
	)
	return form.Run()
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("name cannot be empty")
	}
	return nil
}

var showCmd = &cobra.Command{
	Use:     "show",
	GroupID: "profile",
	Short:   "Show the cached profile and sync state",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		return withLocal(func(ep *endpoint.Endpoint) error {
			snap, err := ep.Snapshot(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"role":              snap.Role,
					"deviceIdentifier":  snap.DeviceID,
					"hasPendingChanges": snap.HasPendingChanges,
					"profile":           snap.Profile,
				})
			}

			if snap.Profile == nil {
				fmt.Fprintf(out, "%s No profile yet. Run \"spellsync init\".\n", ui.RenderWarn("!"))
				return nil
			}
			fields := profileFields(*snap.Profile)
			fields = append(fields,
				ui.Field{Label: "Device", Value: fmt.Sprintf("%s (%s)", snap.DeviceID, snap.Role)},
				ui.Field{Label: "Pending", Value: yesNo(snap.HasPendingChanges)},
			)
			fmt.Fprint(out, ui.Details(snap.Profile.Profile.Name, fields))
			return nil
		})
	},
}

// mutation builds a command that applies one local change.
func mutation(use, short string, apply func(ctx context.Context, ep *endpoint.Endpoint, arg string) (profile.Syncable, error)) *cobra.Command {
	return &cobra.Command{
		Use:     use,
		GroupID: "profile",
		Short:   short,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLocal(func(ep *endpoint.Endpoint) error {
				s, err := apply(cmd.Context(), ep, args[0])
				if errors.Is(err, endpoint.ErrNoProfile) {
					return errors.New("no profile yet; run \"spellsync init\" first")
				}
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), ui.Details(s.Profile.Name, profileFields(s)))
				if ep.HasPendingChanges() {
					fmt.Fprintln(cmd.OutOrStdout(), ui.RenderMuted("Saved locally; the change syncs when \"spellsync serve\" runs."))
				}
				return nil
			})
		},
	}
}

var completeCmd = mutation("complete <level>", "Mark a level of the current grade completed",
	func(ctx context.Context, ep *endpoint.Endpoint, arg string) (profile.Syncable, error) {
		level, err := parseInt(arg, "level")
		if err != nil {
			return profile.Syncable{}, err
		}
		return ep.CompleteLevel(ctx, level)
	})

var gradeCmd = mutation("grade <grade>", "Switch the active grade (1-7)",
	func(ctx context.Context, ep *endpoint.Endpoint, arg string) (profile.Syncable, error) {
		grade, err := parseInt(arg, "grade")
		if err != nil {
			return profile.Syncable{}, err
		}
		return ep.UpdateGrade(ctx, grade)
	})

var awardCmd = mutation("award <coins>", "Add coins to the balance",
	func(ctx context.Context, ep *endpoint.Endpoint, arg string) (profile.Syncable, error) {
		coins, err := parseInt(arg, "coin amount")
		if err != nil {
			return profile.Syncable{}, err
		}
		return ep.AwardCoins(ctx, coins)
	})

var renameCmd = mutation("rename <name>", "Change the learner's name",
	func(ctx context.Context, ep *endpoint.Endpoint, arg string) (profile.Syncable, error) {
		return ep.UpdateName(ctx, arg)
	})

func init() {
	initCmd.Flags().String("name", "", "learner name (skips the form)")
	initCmd.Flags().Int("grade", 1, "starting grade (1-7)")
	showCmd.Flags().Bool("json", false, "print JSON")

	rootCmd.AddCommand(initCmd, showCmd, completeCmd, gradeCmd, awardCmd, renameCmd)
}
