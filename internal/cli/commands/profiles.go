package commands

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/metalayer-labs/metasync/internal/config"
	"github.com/metalayer-labs/metasync/internal/mapper"
)

// NewProfilesCommand creates the profiles command group.
func NewProfilesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "Manage mapping profiles",
	}
	cmd.AddCommand(newProfilesValidateCommand())
	cmd.AddCommand(newProfilesExportCommand())
	return cmd
}

func newProfilesValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate all mapping profiles",
		Long: `Load every profile in the profiles directory and check its rules:
known rule types, valid field paths, and consistent naming conventions.
Exits non-zero when any profile is invalid.`,
		RunE: runProfilesValidate,
	}
}

func runProfilesValidate(cmd *cobra.Command, _ []string) error {
	cfg := config.FromContext(cmd.Context())
	logger := config.LoggerFromContext(cmd.Context())

	profiles, loadErrs, err := config.LoadProfiles(cfg.ProfilesDir)
	if err != nil {
		return err
	}

	m := mapper.New(mapper.Config{Environment: cfg.Environment, Logger: logger})

	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"PROFILE", "RULES", "STATUS"})

	invalid := len(loadErrs)
	for _, name := range names {
		profile := profiles[name]
		status := "ok"
		if verr := m.ValidateProfile(profile); verr != nil {
			status = verr.Error()
			invalid++
		}
		t.AppendRow(table.Row{name, len(profile.Rules), status})
	}
	t.Render()

	for _, lerr := range loadErrs {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "failed to load: %v\n", lerr)
	}

	if invalid > 0 {
		return fmt.Errorf("%d profile(s) invalid", invalid)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d profile(s) valid\n", len(profiles))
	return nil
}

// ProfilesExportOptions holds options for profiles export.
type ProfilesExportOptions struct {
	Output string
}

func newProfilesExportCommand() *cobra.Command {
	opts := &ProfilesExportOptions{}

	cmd := &cobra.Command{
		Use:   "export <profile-name>",
		Short: "Export a mapping profile as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProfilesExport(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "Output file (default: stdout)")

	return cmd
}

func runProfilesExport(cmd *cobra.Command, opts *ProfilesExportOptions, name string) error {
	cfg := config.FromContext(cmd.Context())

	profiles, _, err := config.LoadProfiles(cfg.ProfilesDir)
	if err != nil {
		return err
	}
	profile, ok := profiles[name]
	if !ok {
		return fmt.Errorf("unknown profile %q", name)
	}

	var w io.Writer = cmd.OutOrStdout()
	if opts.Output != "" {
		f, err := os.Create(opts.Output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer func() { _ = f.Close() }()
		w = f
	}
	return config.ExportProfile(w, profile)
}
