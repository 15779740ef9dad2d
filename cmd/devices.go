package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tiny-dfr/tiny-dfr/internal/display"
	"github.com/tiny-dfr/tiny-dfr/internal/input"
	"github.com/tiny-dfr/tiny-dfr/internal/ui"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List input devices and DRM cards",
	Long: `List the evdev devices with the role the daemon would give them, and
the DRM cards it would search for the Touch Bar panel.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var out strings.Builder

		devs, err := input.List(input.DefaultDir)
		if err != nil {
			return fmt.Errorf("failed to list input devices: %w", err)
		}
		out.WriteString(ui.FormatHeader("INPUT DEVICES", input.DefaultDir))
		out.WriteString("\n")
		if len(devs) == 0 {
			out.WriteString(ui.SubtleStyle.Render("No readable input devices (try as root)"))
		} else {
			out.WriteString(devicesTable(devs))
		}

		cards, err := display.NewFinder().Candidates()
		if err != nil {
			return fmt.Errorf("failed to list DRM cards: %w", err)
		}
		out.WriteString("\n\n")
		out.WriteString(ui.FormatHeader("DRM CARDS", display.DevicePattern))
		out.WriteString("\n")
		if len(cards) == 0 {
			out.WriteString(ui.SubtleStyle.Render("No DRM cards found"))
		}
		for _, c := range cards {
			out.WriteString("  " + c + "\n")
		}

		fmt.Fprintln(cmd.OutOrStdout(), out.String())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}

func devicesTable(devs []input.DeviceInfo) string {
	rows := make([][]string, 0, len(devs))
	for _, d := range devs {
		name, role := d.Name, d.Role.String()
		switch {
		case d.Name == input.PermissionDenied:
			name = ui.ErrorStyle.Render(name)
		case d.Role == input.RoleDigitizer:
			role += " " + ui.IconActive
		}
		rows = append(rows, []string{d.Path, name, role})
	}
	return ui.Table([]string{"PATH", "NAME", "ROLE"}, rows, func(row, col int) bool {
		return col == 2 && devs[row].Role == input.RoleDigitizer
	})
}
