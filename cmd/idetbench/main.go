// Command idetbench is a thin ambient CLI over the idetgo library: it
// loads a model, runs detection against one or more images, benchmarks
// inference latency, and can watch a directory for new images.
//
// Modeled on the teacher's cmd/sift cobra root + subcommand wiring,
// including the hard-exit-on-Ctrl+C goroutine pattern for blocking CGo
// inference calls.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/screenager/idetgo"
	"github.com/screenager/idetgo/idetimage"
	"github.com/screenager/idetgo/internal/config"
	"github.com/screenager/idetgo/internal/tui"
	"github.com/screenager/idetgo/internal/watcher"
)

var (
	defaultTask      = "text"
	defaultEngine    = "dbnet"
	defaultModelPath = "./models/dbnet.onnx"
	defaultThreads   = 0
)

func main() {
	root := &cobra.Command{
		Use:   "idetbench",
		Short: "Benchmark and exercise embeddable CPU text/face detection",
		Long:  "idetbench — CLI harness over idetgo's DBNet text and SCRFD face detectors.",
	}

	file, err := config.Load(".idetgo.toml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: .idetgo.toml: %v\n", err)
	}
	if file.Task != "" {
		defaultTask = file.Task
	}
	if file.Engine != "" {
		defaultEngine = file.Engine
	}
	if file.ModelPath != "" {
		defaultModelPath = file.ModelPath
	}
	if file.Runtime.OrtIntraThreads > 0 {
		defaultThreads = file.Runtime.OrtIntraThreads
	}

	var task, engineName, modelPath string
	var threads int
	var verbose bool
	root.PersistentFlags().StringVar(&task, "task", defaultTask, "detection task: text or face")
	root.PersistentFlags().StringVar(&engineName, "engine", defaultEngine, "engine: dbnet or scrfd")
	root.PersistentFlags().StringVar(&modelPath, "model", defaultModelPath, "path to the ONNX model file")
	root.PersistentFlags().IntVar(&threads, "threads", defaultThreads, "ONNX intra-op thread count (0 = runtime default)")
	root.PersistentFlags().BoolVar(&verbose, "verbose", file.Verbose, "enable verbose engine/placement logging")

	buildConfig := func() idetgo.DetectorConfig {
		cfg := idetgo.DetectorConfig{
			Task:      taskFromName(task),
			Engine:    engineFromName(engineName),
			ModelPath: modelPath,
			Infer:     inferOptionsFromFile(file),
			Runtime: idetgo.RuntimePolicy{
				OrtIntraThreads: threads,
				NumaPolicy:      numaFromName(file.Runtime.NumaPolicy),
			},
			Verbose: verbose,
		}
		return cfg
	}

	openDetector := func() (*idetgo.Detector, error) {
		cfg := buildConfig()
		if verbose {
			slog.Info("loading detector", "task", cfg.Task, "engine", cfg.Engine, "model", cfg.ModelPath)
		}
		return idetgo.NewDetector(cfg)
	}

	// ---- idetbench detect <image> [image...] -------------------------------
	var jsonOut bool
	detectCmd := &cobra.Command{
		Use:   "detect <image> [image...]",
		Short: "Run detection on one or more images and print the resulting quads",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			det, err := openDetector()
			if err != nil {
				return err
			}
			defer det.Reset()

			for _, path := range args {
				img, err := idetimage.Load(path, idetgo.PixelFormatBGR8)
				if err != nil {
					return fmt.Errorf("load %s: %w", path, err)
				}
				quads, err := det.Detect(img)
				img.Close()
				if err != nil {
					return fmt.Errorf("detect %s: %w", path, err)
				}
				if jsonOut {
					b, _ := json.MarshalIndent(quads, "", "  ")
					fmt.Printf("%s:\n%s\n", path, b)
					continue
				}
				fmt.Printf("%s: %d detections\n", path, len(quads))
				for i, q := range quads {
					fmt.Printf("  %2d  %+v\n", i, q.Pts)
				}
			}
			return nil
		},
	}
	detectCmd.Flags().BoolVar(&jsonOut, "json", false, "output quads as JSON")
	root.AddCommand(detectCmd)

	// ---- idetbench bench <image> [image...] --------------------------------
	root.AddCommand(&cobra.Command{
		Use:   "bench <image> [image...]",
		Short: "Run detection repeatedly over images, reporting a live progress TUI",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			det, err := openDetector()
			if err != nil {
				return err
			}
			defer det.Reset()

			m := tui.New(len(args), engineName)
			p := tea.NewProgram(m)

			go func() {
				var totalDur time.Duration
				var totalDets int
				for i, path := range args {
					start := time.Now()
					img, lerr := idetimage.Load(path, idetgo.PixelFormatBGR8)
					var n int
					var derr error
					if lerr == nil {
						quads, e := det.Detect(img)
						img.Close()
						derr = e
						n = len(quads)
					} else {
						derr = lerr
					}
					dur := time.Since(start)
					totalDur += dur
					totalDets += n

					p.Send(tui.StatsMsg{
						Done: i + 1, Total: len(args),
						Detections:    totalDets,
						LastPath:      path,
						LastLatency:   dur,
						AvgLatency:    totalDur / time.Duration(i+1),
						Err:           derr,
						CurrentEngine: engineName,
					})
				}
				p.Send(tui.DoneMsg{})
			}()

			_, err = p.Run()
			return err
		},
	})

	// ---- idetbench watch <dir> [dir...] ------------------------------------
	root.AddCommand(&cobra.Command{
		Use:   "watch <dir> [dir...]",
		Short: "Watch directories for new/changed images and detect on each",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			det, err := openDetector()
			if err != nil {
				return err
			}
			defer det.Reset()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			w, err := watcher.New(func(path string) error {
				img, err := idetimage.Load(path, idetgo.PixelFormatBGR8)
				if err != nil {
					return err
				}
				defer img.Close()
				quads, err := det.Detect(img)
				if err != nil {
					return err
				}
				fmt.Fprintf(os.Stderr, "[watch] %s: %d detections\n", filepath.Base(path), len(quads))
				return nil
			})
			if err != nil {
				return err
			}

			done := make(chan struct{})
			go func() {
				<-ctx.Done()
				close(done)
			}()

			for _, dir := range args {
				go func(d string) {
					if err := w.Watch(d, done); err != nil {
						fmt.Fprintf(os.Stderr, "watch error %s: %v\n", d, err)
					}
				}(dir)
			}
			<-done
			return nil
		},
	})

	// ---- idetbench policy ---------------------------------------------------
	root.AddCommand(&cobra.Command{
		Use:   "policy",
		Short: "Apply the configured runtime placement policy and print detected CPU topology",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := buildConfig()
			cfg.Runtime.TileParallelThreads = file.Runtime.TileParallelThreads
			cfg.Runtime.SoftMemoryBind = file.Runtime.SoftMemoryBind
			cfg.Runtime.SuppressForeignPools = file.Runtime.SuppressForeignPools
			return idetgo.ApplyRuntimePolicy(cfg.Runtime, true)
		},
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func taskFromName(s string) idetgo.Task {
	if s == "face" {
		return idetgo.TaskFace
	}
	return idetgo.TaskText
}

func engineFromName(s string) idetgo.EngineKind {
	if s == "scrfd" {
		return idetgo.EngineSCRFD
	}
	return idetgo.EngineDBNet
}

func numaFromName(s string) idetgo.NumaMemPolicy {
	switch s {
	case "throughput":
		return idetgo.NumaThroughput
	case "strict":
		return idetgo.NumaStrict
	default:
		return idetgo.NumaLatency
	}
}

func inferOptionsFromFile(f config.File) idetgo.InferenceOptions {
	opts := idetgo.DefaultInferenceOptions()
	in := f.Infer
	if in.BinThresh > 0 {
		opts.BinThresh = in.BinThresh
	}
	if in.BoxThresh > 0 {
		opts.BoxThresh = in.BoxThresh
	}
	if in.Unclip > 0 {
		opts.Unclip = in.Unclip
	}
	if in.MaxImageSize > 0 {
		opts.MaxImageSize = in.MaxImageSize
	}
	if in.MinROIWidth > 0 {
		opts.MinROIWidth = in.MinROIWidth
	}
	if in.MinROIHeight > 0 {
		opts.MinROIHeight = in.MinROIHeight
	}
	if in.NMSIoU > 0 {
		opts.NMSIoU = in.NMSIoU
	}
	if in.TileRows > 0 || in.TileCols > 0 {
		opts.TilesDim = idetgo.GridSpec{Rows: in.TileRows, Cols: in.TileCols}
		opts.TileOverlap = in.TileOverlap
	}
	if in.ApplySigmoid {
		opts.ApplySigmoid = true
	}
	opts.UseFastIoU = in.UseFastIoU
	if in.ScoreChannel != 0 {
		// 0 is indistinguishable from "unset" under this merge style, so a
		// config file can only force channels >= 1; channel 0 relies on the
		// -1 (auto) default already selecting it when a head is single-channel.
		opts.ScoreChannel = in.ScoreChannel
	}
	opts.BindIO = in.BindIO
	opts.FixedInputW = in.FixedInputW
	opts.FixedInputH = in.FixedInputH
	return opts
}
