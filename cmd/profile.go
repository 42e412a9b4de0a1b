package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/hijabist/internal/config"
	"github.com/kozaktomas/hijabist/internal/profile"
	"github.com/spf13/cobra"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show your profile and last analysis",
	Long: `Show the logged-in user and the most recent analysis, comparing the
saved history with the backend profile. Use --history to list every saved
analysis.`,
	RunE: runProfile,
}

func init() {
	rootCmd.AddCommand(profileCmd)

	profileCmd.Flags().Bool("history", false, "List all saved analyses")
	profileCmd.Flags().Int("limit", 0, "Limit number of listed analyses (0 = no limit)")
}

func runProfile(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := context.Background()
	history := mustGetBool(cmd, "history")
	limit := mustGetInt(cmd, "limit")

	client, err := newBackendClient(cfg)
	if err != nil {
		return err
	}
	st, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	sessions, err := restoreSession(ctx, client, st.state)
	if err != nil {
		return err
	}
	user := sessions.Current()
	if user == nil {
		return errors.New("not logged in, run \"hijabist login\" first")
	}

	cache := profile.NewCache(st.analyses, client)
	fmt.Printf("[%s] %s <%s>\n\n", profile.UserInitials(user), user.DisplayName, user.Email)

	last := cache.LoadLastAnalysis(ctx, user)
	if last == nil {
		fmt.Println("No analysis yet. Run \"hijabist analyze <image>\" to get started.")
	} else {
		fmt.Println("Last analysis:")
		fmt.Printf("  [%s] Face shape: %s (%.0f%%)\n", profile.ShapeInitial(last.FaceShape), last.FaceShape, last.Confidence*100)
		fmt.Printf("  [%s] Skin tone:  %s\n", profile.ToneInitial(last.SkinTone), profile.FormatSkinTone(last.SkinTone))
		fmt.Printf("  %s at %s (%s)\n", profile.FormatDate(last.Date), profile.FormatTime(last.Date), last.Source)
	}

	if !history {
		return nil
	}

	list, err := cache.History(ctx, user)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	fmt.Printf("\nHistory (%d):\n", len(list))
	for _, a := range list {
		fmt.Printf("  %s  %-12s %-8s %s %s\n", a.ID, profile.FormatSkinTone(a.SkinTone), a.FaceShape,
			profile.FormatDate(a.Date), profile.FormatTime(a.Date))
	}
	return nil
}
