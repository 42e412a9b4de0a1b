package cmd

import (
	"fmt"
	"strings"

	"github.com/kozaktomas/hijabist/internal/config"
	"github.com/kozaktomas/hijabist/internal/presenter"
	"github.com/spf13/cobra"
)

var palettesCmd = &cobra.Command{
	Use:   "palettes [tone]",
	Short: "List color palettes per skin tone",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog := config.LoadCatalog()

		tones := catalog.ToneNames()
		if len(args) == 1 {
			if _, ok := catalog.Palette(args[0]); !ok {
				return fmt.Errorf("unknown skin tone %q (known: %s)", args[0], strings.Join(tones, ", "))
			}
			tones = []string{strings.ToLower(args[0])}
		}

		for _, tone := range tones {
			groups, _ := catalog.Palette(tone)
			fmt.Printf("%s\n", presenter.GroupDisplayName(nil, tone))
			for _, g := range groups {
				fmt.Printf("  %-14s %s\n", presenter.GroupDisplayName(&catalog, g.Group), strings.Join(g.Colors, " "))
			}
		}

		if mustGetBool(cmd, "shapes") {
			fmt.Println("\nFace shapes")
			for _, name := range catalog.FaceShapeNames() {
				info, _ := catalog.FaceShapeInfo(name)
				fmt.Printf("  %-8s %s\n", info.Title, info.Description)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(palettesCmd)

	palettesCmd.Flags().Bool("shapes", false, "Also list face shape descriptions")
}
