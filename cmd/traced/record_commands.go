package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"traced/internal/retention"
	"traced/internal/trace"
)

func newStartCommand(ctx *commandContext) *cobra.Command {
	var (
		tagsFlag       string
		bufferKB       int
		apps           bool
		long           bool
		maxSizeMB      int
		maxDurationMin int
		stackSampling  bool
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a detached recording session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			engine, err := ctx.engine()
			if err != nil {
				return err
			}
			store, err := ctx.openHistory()
			if err != nil {
				return err
			}
			defer store.Close()

			kind := trace.RecordingTrace
			var tags []string
			var ok bool

			if stackSampling {
				kind = trace.RecordingStackSamples
				ok, err = engine.StackSampleStart(cfg.Recording.AttachToBugreport)
			} else {
				tags = splitTags(tagsFlag)
				if bufferKB <= 0 {
					bufferKB = cfg.Recording.DefaultBufferSizeKB
				}
				if long {
					if !cmd.Flags().Changed("max-size-mb") {
						maxSizeMB = cfg.Recording.DefaultLongTraceSizeMB
					}
					if !cmd.Flags().Changed("max-duration-min") {
						maxDurationMin = cfg.Recording.DefaultLongTraceDurationMinutes
					}
				}
				ok, err = engine.TraceStart(trace.Request{
					Tags:                        tags,
					BufferSizeKB:                bufferKB,
					Apps:                        apps,
					AttachToBugreport:           cfg.Recording.AttachToBugreport,
					LongTrace:                   long,
					MaxLongTraceSizeMB:          maxSizeMB,
					MaxLongTraceDurationMinutes: maxDurationMin,
				})
			}
			if err != nil {
				return err
			}
			if !ok {
				// A refused start established no session. Issuing a
				// stop here would attach to and kill a session some
				// other controller is still recording.
				return errors.New("recording did not start")
			}

			if _, err := store.Begin(kind, tags); err != nil {
				return fmt.Errorf("record session start: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Recording started")
			return nil
		},
	}

	cmd.Flags().StringVar(&tagsFlag, "tags", "", "Comma-separated capture categories (see `traced categories`)")
	cmd.Flags().IntVar(&bufferKB, "buffer-kb", 0, "Per-CPU buffer size in KB (default from config)")
	cmd.Flags().BoolVar(&apps, "apps", false, "Enable wildcard app tracing")
	cmd.Flags().BoolVar(&long, "long", false, "Stream to file while recording (long trace)")
	cmd.Flags().IntVar(&maxSizeMB, "max-size-mb", 0, "Long trace size cap in MB, 0 for unlimited")
	cmd.Flags().IntVar(&maxDurationMin, "max-duration-min", 0, "Long trace duration cap in minutes, 0 for unlimited")
	cmd.Flags().BoolVar(&stackSampling, "stack-sampling", false, "Record callstack samples instead of a trace")
	return cmd
}

func newStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the active recording without saving it",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := ctx.engine()
			if err != nil {
				return err
			}
			if err := engine.TraceStop(); err != nil {
				return err
			}

			store, err := ctx.openHistory()
			if err != nil {
				return err
			}
			defer store.Close()
			if session, active, err := store.ActiveSession(); err == nil && active {
				if err := store.Abort(session.ID); err != nil {
					return fmt.Errorf("record session stop: %w", err)
				}
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Recording stopped without saving")
			return nil
		},
	}
}

func newSaveCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "save [filename]",
		Short: "Stop the active recording and save it to the output directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			engine, err := ctx.engine()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			store, err := ctx.openHistory()
			if err != nil {
				return err
			}
			defer store.Close()

			var filename string
			if len(args) == 1 {
				filename = args[0]
			} else {
				kind, err := store.LastKind()
				if err != nil {
					return err
				}
				board, buildID := trace.HostBuildInfo()
				filename = trace.OutputFilename(kind, board, buildID, engine.OutputExtension(), time.Now())
			}
			outPath := filepath.Join(cfg.Paths.OutputDir, filename)

			ok, err := engine.TraceDump(outPath)
			if err != nil {
				return err
			}
			if !ok {
				return errors.New("no recording to save")
			}

			if session, active, err := store.ActiveSession(); err == nil && active {
				if err := store.Finish(session.ID, outPath); err != nil {
					return fmt.Errorf("record session save: %w", err)
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Saved recording to %s\n", outPath)

			// The artifact is already safe; prune strictly afterwards.
			retention.Sweep(logger, cfg.Paths.OutputDir,
				cfg.Retention.MinKeepCount,
				time.Duration(cfg.Retention.MinKeepAgeDays)*24*time.Hour)
			return nil
		},
	}
	return cmd
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether a recording session is active",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := ctx.engine()
			if err != nil {
				return err
			}
			active, err := engine.IsTracingOn()
			if err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()
			if active {
				fmt.Fprintf(stdout, "Recording in progress (engine %s)\n", engine.Name())
			} else {
				fmt.Fprintln(stdout, "No recording in progress")
			}
			return nil
		},
	}
}
