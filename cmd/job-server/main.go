package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/aspiranek/sim/internal/config"
	"github.com/aspiranek/sim/internal/conver"
	"github.com/aspiranek/sim/internal/database"
	"github.com/aspiranek/sim/internal/dispatcher"
	"github.com/aspiranek/sim/internal/filestore"
	"github.com/aspiranek/sim/internal/handlers"
	"github.com/aspiranek/sim/internal/judger"
	"github.com/aspiranek/sim/internal/notify"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

var Version = "dev-build"

func main() {

	fmt.Fprintf(os.Stderr, "sim job-server %s\n\n", Version)

	// config
	var configPath string
	flag.StringVar(&configPath, "c", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// logger
	var logger *zap.Logger
	if cfg.Logger.Level == "debug" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	// database
	db, err := database.Init(cfg.Storage.Database)
	if err != nil {
		zap.S().Fatalf("failed to initialize database: %v", err)
	}
	zap.S().Info("database initialized successfully")

	// put jobs claimed by a crashed previous run back in the queue
	if err := database.RecoverInterrupted(db); err != nil {
		zap.S().Fatalf("failed to recover interrupted jobs: %v", err)
	}

	// internal file store
	files, err := filestore.New(cfg.Storage.InternalFiles)
	if err != nil {
		zap.S().Fatalf("failed to initialize file store: %v", err)
	}

	env := &handlers.Env{
		Files:  files,
		Judge:  judger.NewCommandJudge(cfg.Tools.JudgeBinary, cfg.Tools.JudgeTimeout.Std()),
		Conver: conver.NewCommandConver(cfg.Tools.ConverBinary, cfg.Tools.ConverTimeout.Std()),
		Limits: cfg.Limits,
	}

	// wake-up channel for the workers
	watcher := notify.NewWatcher(cfg.Storage.NotifyFile, cfg.Workers.PollInterval.Std(), clockwork.NewRealClock())
	watcher.Start()
	defer watcher.Stop()

	notifier := notify.NewNotifier(cfg.Storage.NotifyFile)

	// worker pool
	ctx, stop := context.WithCancel(context.Background())
	d := dispatcher.New(db, env, watcher, notifier, cfg.Workers.Count)
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()
	zap.S().Info("job dispatcher started")

	// graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zap.S().Info("shutting down job server...")
	stop()
	<-done
}
