package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/gridscan/pyratiff/mapbuffer"
	"github.com/gridscan/pyratiff/scan"
	"github.com/gridscan/pyratiff/svs"
)

var (
	flagLevel    int
	flagFrameW   int64
	flagFrameH   int64
	flagSequence string
	flagEqualize bool
	flagMeta     bool
	flagStitch   bool
	flagDryRun   bool
)

func main() {
	root := &cobra.Command{
		Use:   "pyrscan file.svs",
		Short: "plan and run an auto-scanning sequence over a pyramid file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args[0])
		},
		SilenceUsage: true,
	}
	root.Flags().IntVar(&flagLevel, "level", 0, "resolution level to scan")
	root.Flags().Int64Var(&flagFrameW, "frame-width", 1024, "frame width in pixels")
	root.Flags().Int64Var(&flagFrameH, "frame-height", 1024, "frame height in pixels")
	root.Flags().StringVar(&flagSequence, "sequence", "ROWS_SNAKE", "scanning sequence")
	root.Flags().BoolVar(&flagEqualize, "equalize-grid", false, "balance the trailing frame sizes")
	root.Flags().BoolVar(&flagMeta, "use-metadata", true, "restrict to sidecar metadata ROIs when present")
	root.Flags().BoolVar(&flagStitch, "stitch", false, "feed frames through a stitching map buffer")
	root.Flags().BoolVar(&flagDryRun, "dry-run", false, "plan only, do not read pixels")

	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, path string) error {
	seq, err := scan.ParseSequence(flagSequence)
	if err != nil {
		return err
	}
	source := svs.OpenFile(path)
	defer source.Close()

	dims, err := source.LevelDimensions(flagLevel)
	if err != nil {
		return err
	}
	bands, levelW, levelH := dims[0], dims[1], dims[2]
	log.Printf("%s level %d: %dx%d, %d bands", filepath.Base(path), flagLevel, levelW, levelH, bands)

	rois := []scan.ROI{{X1: 0, Y1: 0, X2: int64(levelW) - 1, Y2: int64(levelH) - 1}}
	if flagMeta {
		meta, err := source.Metadata()
		if err == nil && meta != nil {
			divisor := int64(1)
			for i := 0; i < flagLevel; i++ {
				divisor *= 2
			}
			var metaRois []scan.ROI
			for _, r := range meta.Rectangles(divisor) {
				metaRois = append(metaRois, scan.ROI{X1: r.X1, Y1: r.Y1, X2: r.X2, Y2: r.Y2})
			}
			if len(metaRois) > 0 {
				rois = metaRois
			}
		}
	}

	planner, err := scan.NewPlanner(rois, flagFrameW, flagFrameH, seq, flagEqualize, scan.LastPyramid(true))
	if err != nil {
		return err
	}
	log.Printf("%d ROIs, %d frames, recommended buffer %d frames",
		planner.NumberOfROIs(), planner.TotalFrames(), planner.RecommendedFramesInBuffer())

	var buffer *mapbuffer.MapBuffer
	if flagStitch {
		buffer = mapbuffer.NewMapBuffer(
			mapbuffer.Capacity(planner.RecommendedFramesInBuffer()),
			mapbuffer.StitchingLabels(true),
			mapbuffer.AutoReindexLabels(true),
			mapbuffer.ZeroIsBackground(true),
		)
	}

	for {
		if err := ctx.Err(); err != nil {
			planner.Cancel()
			return err
		}
		plan, ok := planner.Next()
		if !ok {
			break
		}
		fmt.Printf("frame %d roi %d cell (%d, %d) at (%d, %d) %dx%d",
			plan.FrameIndex, plan.RoiIndex, plan.XIndex, plan.YIndex, plan.X, plan.Y, plan.W, plan.H)
		if plan.LastOverall {
			fmt.Print(" [last]")
		}
		fmt.Println()
		if flagDryRun {
			continue
		}
		data, err := source.ReadRegion(ctx, flagLevel, int(plan.X), int(plan.Y), int(plan.W), int(plan.H))
		if err != nil {
			return fmt.Errorf("read frame %d: %w", plan.FrameIndex, err)
		}
		if buffer != nil {
			labels := thresholdLabels(data, bands, int(plan.W), int(plan.H))
			frame := mapbuffer.NewFrame(int(plan.X), int(plan.Y), int(plan.W), int(plan.H), labels)
			if err := buffer.Add(frame); err != nil {
				return fmt.Errorf("buffer frame %d: %w", plan.FrameIndex, err)
			}
		}
	}
	if buffer != nil {
		buffer.ObjectPairs().ResolveAllBases()
		log.Printf("buffered %d frames, %d raw labels", buffer.NumberOfFrames(), buffer.ObjectCount())
	}
	return nil
}

// thresholdLabels derives a crude object mask from the first band: every
// non-background pixel becomes label 1. Real pipelines label with a
// segmentation stage; this keeps the stitching path exercisable from the
// command line.
func thresholdLabels(data []byte, bands, w, h int) []int32 {
	labels := make([]int32, w*h)
	for i := 0; i < w*h; i++ {
		if data[i*bands] < 0xE0 {
			labels[i] = 1
		}
	}
	return labels
}
