// Package cli builds nanoserve's command line interface using
// github.com/spf13/cobra, the same framework and structure the
// teacher's own CLI used: a root command with a persistent --config
// flag and subcommands that load that config before acting.
package cli

import (
	"bytes"
	"compress/gzip"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nanoserve/nanoserve/internal/config"
	"github.com/nanoserve/nanoserve/internal/httpserver"
	"github.com/nanoserve/nanoserve/internal/metrics"
	"github.com/nanoserve/nanoserve/internal/router"
	"github.com/nanoserve/nanoserve/internal/staticdemo"
	"github.com/nanoserve/nanoserve/internal/taskqueue"
)

var configFile string

// BuildCLI returns the root "nanoserve" command with its
// subcommands attached.
func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "nanoserve",
		Short:   "nanoserve: a minimal HTTP/1.1 server with a durable task queue",
		Version: "1.0.0",
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "configs/default.yaml", "config file path")
	rootCmd.AddCommand(buildServeCommand())

	return rootCmd
}

func buildServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	var recorder *metrics.Collector
	if cfg.Metrics.Enabled {
		recorder = metrics.NewCollector()
		go func() {
			log.Printf("nanoserve: metrics listening on :%d/metrics", cfg.Metrics.Port)
			if err := metrics.StartServer(cfg.Metrics.Port); err != nil {
				log.Printf("nanoserve: metrics server error: %v", err)
			}
		}()
	}

	server, err := httpserver.Create(cfg.Server.Port)
	if err != nil {
		return err
	}
	if recorder != nil {
		server.Recorder = recorder
	}

	if err := server.AddRoute("/", staticdemo.IndexEndpoint{}); err != nil {
		return err
	}
	if err := server.AddRoute("/favicon.ico", staticdemo.FaviconEndpoint{}); err != nil {
		return err
	}

	var controller *taskqueue.Controller
	if cfg.Tasks.Enabled {
		controller, err = startTaskQueue(cfg, recorder)
		if err != nil {
			return err
		}

		if err := server.AddRoute("/tasks", taskqueue.TasksEndpoint{Controller: controller}); err != nil {
			return err
		}
	}

	if cfg.HTTP404.Enabled {
		server.SetNotFoundEndpoint(notFoundEndpoint{})
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("nanoserve: received shutdown signal")
		if controller != nil {
			controller.Stop()
		}
		os.Exit(0)
	}()

	log.Printf("nanoserve: listening on :%d with %d workers", cfg.Server.Port, cfg.Server.WorkerCount)
	return server.Listen(cfg.Server.WorkerCount)
}

func startTaskQueue(cfg *config.Config, recorder *metrics.Collector) (*taskqueue.Controller, error) {
	tcfg := taskqueue.Config{
		WorkerCount:      cfg.Tasks.WorkerCount,
		TaskTimeout:      time.Duration(cfg.Tasks.TaskTimeoutSeconds) * time.Second,
		SnapshotInterval: time.Duration(cfg.Tasks.SnapshotIntervalSeconds) * time.Second,
		MaxRetry:         cfg.Tasks.MaxRetry,
		WALPath:          cfg.Tasks.WALDir + "/nanoserve.wal",
		SnapshotPath:     cfg.Tasks.SnapshotDir + "/nanoserve.snapshot",
		WALBufferSize:    cfg.Tasks.BufferSize,
		WALFlushInterval: time.Duration(cfg.Tasks.FlushIntervalMs) * time.Millisecond,
	}

	var taskRecorder taskqueue.Recorder
	if recorder != nil {
		taskRecorder = recorder
	}

	controller, err := taskqueue.NewController(tcfg, taskRecorder, runTaskPlaceholder)
	if err != nil {
		return nil, err
	}
	controller.Start()
	return controller, nil
}

// runTaskPlaceholder is the task executor nanoserve ships by default:
// it simply acknowledges the task. Embedders that need real work done
// construct their own taskqueue.Controller with a different run
// function instead of going through this CLI.
func runTaskPlaceholder(task *taskqueue.Task) error {
	return nil
}

// notFoundEndpoint is the custom 404 handler installed when
// http_404.enabled is set, in place of the server's built-in
// fallback.
type notFoundEndpoint struct {
	router.StrictMatch
}

func (notFoundEndpoint) Process(info router.RoutedInfo[*httpserver.RouteInfo]) error {
	return info.Data.WriteNotFound(notFoundBody)
}

var notFoundBody = gzipString("Could not find resource.")

func gzipString(s string) []byte {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	w.Write([]byte(s))
	w.Close()
	return buf.Bytes()
}
