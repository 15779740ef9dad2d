package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tiny-dfr/tiny-dfr/internal/config"
	"github.com/tiny-dfr/tiny-dfr/internal/ui"
)

var configWidth int

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the resolved configuration",
	Long: `Load the base and override configuration the way the daemon does and
print the settings and both layers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := newLoader().Load(configWidth)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderConfig(cfg))
		return nil
	},
}

func init() {
	configCmd.Flags().IntVarP(&configWidth, "width", "w", 2008, "Logical strip width in pixels")
	rootCmd.AddCommand(configCmd)
}

func renderConfig(cfg *config.Config) string {
	var out strings.Builder

	out.WriteString(ui.FormatHeader("SETTINGS", ""))
	out.WriteString("\n")
	settings := [][]string{
		{"ShowButtonOutlines", ui.FormatBool(cfg.ShowButtonOutlines)},
		{"EnablePixelShift", ui.FormatBool(cfg.EnablePixelShift)},
		{"FontTemplate", cfg.FontTemplate},
		{"AdaptiveBrightness", ui.FormatBool(cfg.AdaptiveBrightness)},
		{"ActiveBrightness", strconv.FormatUint(uint64(cfg.ActiveBrightness), 10)},
	}
	out.WriteString(ui.Table([]string{"KEY", "VALUE"}, settings, nil))

	for _, l := range []struct {
		name    string
		buttons []config.Button
	}{
		{"PRIMARY LAYER", cfg.PrimaryLayerKeys},
		{"MEDIA LAYER", cfg.MediaLayerKeys},
	} {
		out.WriteString("\n\n")
		out.WriteString(ui.FormatHeader(l.name, fmt.Sprintf("%d buttons", len(l.buttons))))
		out.WriteString("\n")
		out.WriteString(ui.Table([]string{"#", "KIND", "CONTENT", "ACTION", "STRETCH"}, buttonRows(l.buttons), nil))
	}
	return out.String()
}

func buttonRows(buttons []config.Button) [][]string {
	rows := make([][]string, 0, len(buttons))
	for i, b := range buttons {
		kind, content := describeButton(b)
		rows = append(rows, []string{
			strconv.Itoa(i), kind, content, b.Action, strconv.Itoa(b.Stretch),
		})
	}
	return rows
}

func describeButton(b config.Button) (kind, content string) {
	switch {
	case b.Text != "":
		return "text", b.Text
	case b.Icon != "":
		if b.Theme != "" {
			return "icon", b.Icon + " (" + b.Theme + ")"
		}
		return "icon", b.Icon
	case b.Time != "":
		return "clock", b.Time + " " + b.Locale
	case b.Battery != "":
		return "battery", b.Battery
	case b.Memory != "":
		return "memory", b.Memory
	case b.Processor != "":
		return "cpu", b.Processor
	}
	return "blank", ""
}
