package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/radouane/scanner/internal/capture"
	"github.com/radouane/scanner/internal/capture/chromecam"
	"github.com/spf13/cobra"
)

func newCameraCmd() *cobra.Command {
	var (
		output     string
		focus      string
		fakeCamera bool
		analyze    bool
		format     string
	)

	cmd := &cobra.Command{
		Use:   "camera",
		Short: "Capture a label photo from the rear camera",
		Long: `Opens the rear-facing camera, optionally focuses on a point, captures one frame and
releases the camera. The frame is saved as JPEG and can be analyzed right away.`,
		Example: `  # Capture to a file
  radouane camera --out label.jpg

  # Focus on the centre, capture and analyze
  radouane camera --focus 0.5,0.5 --analyze`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("fake-camera") {
				cfg.FakeCamera = fakeCamera
			}
			var at *capture.Point
			if focus != "" {
				p, err := parsePoint(focus)
				if err != nil {
					return err
				}
				at = &p
			}

			device := chromecam.New(chromecam.Options{
				ExecPath:   cfg.ChromePath,
				FakeDevice: cfg.FakeCamera,
				Logger:     slog.Default(),
			})
			sess, err := newCLISession(device)
			if err != nil {
				return err
			}
			defer sess.Close()

			ctx := cmd.Context()
			if err := sess.Camera.Open(ctx); err != nil {
				return err
			}
			if at != nil {
				res, err := sess.Camera.FocusAt(ctx, *at)
				if err != nil {
					return err
				}
				slog.Info("Focus requested", "mode", res.Mode, "applied", res.Applied, "x", res.Point.X, "y", res.Point.Y)
			}

			asset, err := sess.CaptureImage(ctx)
			if err != nil {
				return err
			}
			if output != "" {
				if err := os.WriteFile(output, asset.Data(), 0644); err != nil {
					return fmt.Errorf("failed to write capture: %w", err)
				}
				slog.Info("Frame saved", "path", output, "width", asset.Width(), "height", asset.Height())
			}

			if !analyze {
				return nil
			}
			snap, err := runAnalysis(ctx, sess)
			if err != nil {
				return err
			}
			return printSnapshot(cmd.OutOrStdout(), snap, format)
		},
	}

	cmd.Flags().StringVarP(&output, "out", "o", "capture.jpg", "File to save the captured frame to (empty to skip)")
	cmd.Flags().StringVar(&focus, "focus", "", "Focus point as x,y in 0..1 preview coordinates")
	cmd.Flags().BoolVar(&fakeCamera, "fake-camera", false, "Use Chrome's synthetic camera instead of real hardware")
	cmd.Flags().BoolVar(&analyze, "analyze", false, "Analyze the captured frame")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format when analyzing (text, json, or yaml)")

	return cmd
}

func parsePoint(s string) (capture.Point, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return capture.Point{}, fmt.Errorf("focus must be x,y, got %q", s)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return capture.Point{}, fmt.Errorf("invalid focus x: %w", err)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return capture.Point{}, fmt.Errorf("invalid focus y: %w", err)
	}
	return capture.Point{X: x, Y: y}, nil
}
