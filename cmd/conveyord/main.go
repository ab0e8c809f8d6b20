// Command conveyord runs the media ingestion daemon: it watches the drop
// directory, schedules conversions inside the configured window, and serves
// the control socket used by the conveyor CLI.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"conveyor/internal/config"
	"conveyor/internal/daemon"
	"conveyor/internal/ipc"
	"conveyor/internal/logging"
	"conveyor/internal/workflow"
)

func main() {
	configPath := flag.String("config", "", "path to config.toml")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, resolved, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config %s: %v", resolved, err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	manager, err := workflow.New(workflow.Options{Config: cfg, Logger: logger})
	if err != nil {
		logger.Error("create workflow", logging.Error(err))
		return
	}

	d, err := daemon.New(cfg, manager, logger)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		return
	}

	if err := d.Start(ctx); err != nil {
		logger.Error("daemon start", logging.Error(err))
		return
	}
	defer d.Stop()

	ipcServer, err := ipc.NewServer(ctx, cfg.Paths.SocketPath, manager, logger)
	if err != nil {
		logger.Error("start IPC server", logging.Error(err))
		return
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	<-ctx.Done()
	logger.Info("conveyord shutting down")
}
