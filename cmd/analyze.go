package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/kozaktomas/hijabist/internal/analysis"
	"github.com/kozaktomas/hijabist/internal/apperrors"
	"github.com/kozaktomas/hijabist/internal/config"
	"github.com/kozaktomas/hijabist/internal/flow"
	"github.com/kozaktomas/hijabist/internal/media"
	"github.com/kozaktomas/hijabist/internal/presenter"
	"github.com/kozaktomas/hijabist/internal/progress"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [image-path]",
	Short: "Analyze a face photo",
	Long: `Analyze a face photo for face shape and skin tone and print the
recommended hijab styles and color palettes.

Without an image path the photo is captured from the camera configured with
CAMERA_SNAPSHOT_URL. You must be logged in (see "hijabist login").`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().Bool("save", false, "Save the result to your analysis history")
	analyzeCmd.Flags().Bool("share", false, "Print the share text and link")
	analyzeCmd.Flags().Bool("json", false, "Output the result as JSON")
	analyzeCmd.Flags().String("facing", "", "Camera facing mode (user or environment)")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	save := mustGetBool(cmd, "save")
	share := mustGetBool(cmd, "share")
	jsonOutput := mustGetBool(cmd, "json")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	var camera media.Camera
	if cfg.Camera.SnapshotURL != "" {
		camera = media.NewHTTPCamera(cfg.Camera.SnapshotURL)
	}
	reporter := progress.NewReporter()
	controller := flow.NewController(
		media.NewAcquirer(camera, media.NewPreviewRegistry("preview:")),
		analysis.NewClient(client, sessions, analysis.WithTimeout(cfg.Backend.Timeout)),
		reporter,
	)
	defer controller.Close()

	facing := mustGetString(cmd, "facing")
	if facing == "" {
		facing = cfg.Camera.FacingMode
	}
	if err := selectImage(ctx, controller, args, camera != nil, facing); err != nil {
		return err
	}

	bar := progressbar.NewOptions(100,
		progressbar.OptionSetDescription("Analyzing"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
	unsubscribe := reporter.Subscribe(func(v int) { _ = bar.Set(v) })
	result, err := controller.Analyze(ctx)
	unsubscribe()
	fmt.Fprintln(os.Stderr)

	if err != nil {
		if apperrors.IsKind(err, apperrors.KindNotAuthenticated) {
			return errors.New("not logged in, run \"hijabist login\" first")
		}
		return noticeError(controller.Snapshot().Notice, err)
	}
	_ = bar.Finish()

	vm, err := presenter.MapToViewModel(result, &cfg.Catalog)
	if err != nil {
		return fmt.Errorf("failed to present result: %w", err)
	}
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(vm); err != nil {
			return err
		}
	} else {
		printViewModel(vm)
	}

	results := presenter.NewResultsPresenter(result, presenter.ResultsOptions{
		Sessions:  sessions,
		Store:     st.analyses,
		Clipboard: presenter.WriterClipboard{W: os.Stdout},
		PageURL:   cfg.Web.PublicURL + "/results",
	})
	if save {
		if err := saveResult(ctx, results); err != nil {
			return err
		}
	}
	if share {
		fmt.Println(results.ShareData().Text)
		res, err := results.Share(ctx)
		if err != nil {
			return err
		}
		if res.Title != "" {
			fmt.Printf("%s: %s\n", res.Title, res.Description)
		}
	}
	return nil
}

// selectImage selects the file at args[0] or captures a camera frame.
func selectImage(ctx context.Context, controller *flow.Controller, args []string, hasCamera bool, facing string) error {
	if len(args) == 1 {
		upload, err := media.ReadFile(args[0])
		if err != nil {
			return err
		}
		if _, err := controller.SelectUpload(upload); err != nil {
			return noticeError(controller.Snapshot().Notice, err)
		}
		fmt.Printf("Selected %s\n", args[0])
		return nil
	}

	if !hasCamera {
		return errors.New("an image path is required when CAMERA_SNAPSHOT_URL is not set")
	}
	if _, err := controller.OpenCamera(ctx, media.Constraints{FacingMode: facing}); err != nil {
		return noticeError(controller.Snapshot().Notice, err)
	}
	if _, err := controller.Capture(ctx); err != nil {
		return noticeError(controller.Snapshot().Notice, err)
	}
	fmt.Println("Captured photo from camera")
	return nil
}

func saveResult(ctx context.Context, results *presenter.ResultsPresenter) error {
	outcome, err := results.SaveAnalysis(ctx)
	if err != nil {
		return fmt.Errorf("failed to save analysis: %w", err)
	}
	switch outcome {
	case presenter.SaveLoginRequired:
		fmt.Println("Please log in to save your analysis")
	case presenter.SaveAlreadySaved:
		fmt.Println("Analysis already saved")
	default:
		fmt.Println("Analysis saved to your history")
	}
	return nil
}

// noticeError formats a flow notice as the command error.
func noticeError(n *flow.Notice, err error) error {
	if n == nil {
		return err
	}
	return fmt.Errorf("%s: %s", n.Title, n.Description)
}

func printViewModel(vm *presenter.ViewModel) {
	face := vm.FaceShape
	fmt.Printf("\nFace shape: %s (%s confidence)\n", face.Title, face.ConfidencePercent)
	if face.Details != "" {
		fmt.Printf("  %s\n", face.Details)
	}
	if face.Description != "" {
		fmt.Printf("  %s\n", face.Description)
	}
	if len(face.Probabilities) > 0 {
		fmt.Println("  Probabilities:")
		for _, p := range face.Probabilities {
			fmt.Printf("    %-10s %s\n", p.Label, p.Percentage)
		}
	}
	if len(face.Videos) > 0 {
		fmt.Println("  Hijab tutorials:")
		for _, v := range face.Videos {
			fmt.Printf("    %s\n", v.URL)
		}
	}

	tone := vm.SkinTone
	fmt.Printf("\nSkin tone: %s\n", tone.Title)
	if len(tone.Groups) > 0 {
		fmt.Println("  Recommended palettes:")
		for _, g := range tone.Groups {
			fmt.Printf("    %-14s %s\n", g.Name, strings.Join(g.Colors, " "))
		}
	}
	fmt.Println()
}
