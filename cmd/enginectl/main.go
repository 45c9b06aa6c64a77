// Command enginectl is the operator CLI for the download engine: it wraps
// playlist resolution and the engine's start/pause/cancel/retry-merge
// commands in a small set of cobra subcommands. It is grounded on the
// itsmenewbie03-greg teacher-adjacent repo's cmd/greg/main.go (cobra root
// command with a shared global config/logger, PersistentPreRunE wiring
// collaborators before every subcommand), generalized from a single TUI
// entrypoint into the four lifecycle commands spec.md §6 names, and on the
// original teacher's cmd/downloader.Download for the SIGINT/SIGTERM
// graceful-shutdown pattern.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"streamengine/pkg/config"
	"streamengine/pkg/constants"
	"streamengine/pkg/engine"
	"streamengine/pkg/events"
	"streamengine/pkg/model"
	"streamengine/pkg/muxer"
	"streamengine/pkg/playlist"
	"streamengine/pkg/segment"
	"streamengine/pkg/store"
)

var (
	cfg       *config.Config
	logger    zerolog.Logger
	metaStore store.Store
	eng       *engine.Engine

	flagFilename string
	flagThreads  int
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "enginectl",
	Short: "Operator CLI for the adaptive stream download engine",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = constants.GetConfig()
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}

		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
			With().Timestamp().Logger()

		if cfg.Store.Driver == "sqlite" {
			metaStore, err = store.OpenSQLiteStore(cfg.Store.DSN)
			if err != nil {
				return fmt.Errorf("opening sqlite store: %w", err)
			}
		} else {
			metaStore = store.NewMemoryStore()
		}

		sink := events.NewChannelSink(256, logger)
		go printEvents(sink)

		mux := muxer.New(&cfg.Muxer, logger)
		segmentFetcher := segment.NewFetcher(cfg.HTTP.UserAgent)
		playlistFetcher := playlist.NewFetcher(cfg.HTTP.UserAgent)

		eng = engine.New(metaStore, sink, mux, segmentFetcher, playlistFetcher, logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if metaStore != nil {
			if err := metaStore.Close(); err != nil {
				logger.Warn().Err(err).Msg("closing store")
			}
		}
	},
}

func printEvents(sink *events.ChannelSink) {
	for e := range sink.Events() {
		switch e.Kind {
		case events.KindDownloadStatus:
			msg := e.Message
			if e.ErrorMessage != "" {
				msg = e.ErrorMessage
			}
			logger.Info().Str("job_id", e.JobID).Str("status", string(e.Status)).Msg(msg)
		case events.KindDownloadProgress:
			logger.Info().Str("job_id", e.JobID).Float64("progress", e.Progress).
				Int("downloaded_segments", e.DownloadedSegments).Float64("speed", e.Speed).Msg("progress")
		case events.KindMergeProgress:
			logger.Info().Str("job_id", e.JobID).Float64("progress", e.Progress).Msg("merging")
		}
	}
}

var addCmd = &cobra.Command{
	Use:   "add <playlist-url>",
	Short: "Resolve a media playlist and create a queued job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		playlistURL := args[0]

		fetcher := playlist.NewFetcher(cfg.HTTP.UserAgent)
		result, err := fetcher.Resolve(ctx, playlistURL)
		if err != nil {
			return fmt.Errorf("resolving playlist: %w", err)
		}
		if result.Live {
			logger.Warn().Str("url", playlistURL).Msg("playlist reports as live; the engine will download it as a fixed snapshot")
		}

		filename := flagFilename
		if filename == "" {
			filename = "download"
		}
		threads := flagThreads
		if threads <= 0 {
			threads = cfg.Core.DefaultThreads
		}

		id := uuid.NewString()
		now := time.Now()
		job := &model.Job{
			ID:          id,
			SourceURL:   playlistURL,
			PlaylistURL: playlistURL,
			Filename:    filename,
			Status:      model.StatusQueued,
			Threads:     threads,
			OutputDir:   cfg.JobOutputDir(id),
			Segments:    result.SegmentURLs,
			Duration:    result.Duration,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := metaStore.CreateJob(ctx, job); err != nil {
			return fmt.Errorf("creating job record: %w", err)
		}

		fmt.Println(id)
		return nil
	},
}

var startCmd = &cobra.Command{
	Use:   "start <job-id>",
	Short: "Begin or resume a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		if err := eng.Start(context.Background(), id); err != nil {
			return err
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigCh
			logger.Info().Str("job_id", id).Msg("pausing on shutdown signal")
			eng.Pause(id)
		}()

		for {
			job, err := metaStore.GetJob(context.Background(), id)
			if err != nil {
				return err
			}
			if job.Status.IsTerminal() || job.Status == model.StatusPaused {
				fmt.Printf("job %s finished with status %s\n", id, job.Status)
				return nil
			}
			time.Sleep(500 * time.Millisecond)
		}
	},
}

var pauseCmd = &cobra.Command{
	Use:   "pause <job-id>",
	Short: "Pause a running job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return eng.Pause(args[0])
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return eng.Cancel(context.Background(), args[0])
	},
}

var retryMergeCmd = &cobra.Command{
	Use:   "retry-merge <job-id>",
	Short: "Re-invoke the muxer for a completed or errored job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return eng.RetryMerge(context.Background(), args[0])
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List known jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		jobs, err := metaStore.ListJobs(context.Background())
		if err != nil {
			return err
		}
		for _, job := range jobs {
			fmt.Printf("%s\t%-12s\t%6.2f%%\t%s\n", job.ID, job.Status, job.Progress, job.Filename)
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show a single job's full record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := metaStore.GetJob(context.Background(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("id:                  %s\n", job.ID)
		fmt.Printf("status:              %s\n", job.Status)
		fmt.Printf("progress:            %.2f%%\n", job.Progress)
		fmt.Printf("downloaded_segments: %d/%d\n", job.DownloadedSegments, job.TotalSegments)
		fmt.Printf("speed:               %.0f B/s\n", job.Speed)
		fmt.Printf("eta:                 %ds\n", job.ETA)
		fmt.Printf("output_file:         %s\n", job.OutputFile)
		if job.ErrorMessage != "" {
			fmt.Printf("error_message:       %s\n", job.ErrorMessage)
		}
		return nil
	},
}

func init() {
	addCmd.Flags().StringVar(&flagFilename, "filename", "", "output filename stem (default: \"download\")")
	addCmd.Flags().IntVar(&flagThreads, "threads", 0, "concurrent segment fetches (default: configured default_threads)")

	rootCmd.AddCommand(addCmd, startCmd, pauseCmd, cancelCmd, retryMergeCmd, listCmd, statusCmd)
}
