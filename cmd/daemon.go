package cmd

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sitincloud/owlyshield-predict/config"
	"github.com/sitincloud/owlyshield-predict/connectors"
	"github.com/sitincloud/owlyshield-predict/engine"
	"github.com/sitincloud/owlyshield-predict/model"
)

// matrixRows bounds the rolling feature matrix every tracked family carries,
// matching prediction.rs's fixed sequence length the predictor contract
// expects as its row dimension.
const matrixRows = model.MatrixRows

// RunDaemon wires every component together — registry, whitelist, queue,
// cluster runner, controller, connectors, the platform collector — and runs
// until SIGINT/SIGTERM, mirroring xtop's RunDaemon signal-and-ticker
// shutdown shape but supervising the several goroutines with an errgroup
// instead of one select loop, since this daemon has more than one
// long-running producer (the kernel collector and the worker loop both run
// independently of the timer-driven ticks xtop's daemon uses).
func RunDaemon(cfg config.Config) error {
	if err := os.MkdirAll(cfg.ConfigPath, 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	registry := engine.NewRegistry(matrixRows)
	whitelist := engine.NewWhitelist(cfg.WhitelistPath)
	queue := engine.NewEventQueue(4096)
	clusterRunner := engine.NewClusterRunner(16)
	sinks := connectors.NewBroadcaster()

	// recorder stays a nil engine.Recorder interface (not a nil
	// *RecordWriter wrapped in a non-nil interface) when recording is off, so
	// the worker's "w.Recorder != nil" guard behaves correctly.
	var recorder engine.Recorder
	if cfg.RecordPath != "" {
		rw, err := connectors.OpenRecordFile(cfg.RecordPath)
		if err != nil {
			return fmt.Errorf("open record file: %w", err)
		}
		defer rw.Close()
		recorder = rw
		sinks.Register(rw)
	}

	sinks.Register(connectors.NewReportWriter(cfg.ConfigPath))

	rpcSink := connectors.NewRPCSink()
	sinks.Register(rpcSink)
	var rpcServer *http.Server
	if cfg.RPCAddr != "" {
		rpcServer = connectors.NewRPCServer(cfg.RPCAddr, rpcSink)
	}

	if cfg.MqttServer != "" {
		mqttSink := connectors.NewMQTTSink(cfg.MqttServer, fmt.Sprintf("owlyshield-predict-%d", os.Getpid()))
		sinks.Register(mqttSink)
		defer mqttSink.Close()
	}
	if cfg.AlertWebhook != "" {
		sinks.Register(connectors.NewWebhookSink(cfg.AlertWebhook))
	}
	if cfg.AlertCommand != "" {
		sinks.Register(connectors.NewDesktopNotifier(cfg.AlertCommand))
	}
	alertSink := connectors.NewAlertSink(connectors.AlertConfig{
		Email:            cfg.AlertEmail,
		SlackWebhook:     cfg.AlertSlackWebhook,
		TelegramBotToken: cfg.AlertTelegramBotToken,
		TelegramChatID:   cfg.AlertTelegramChatID,
	})
	if alertSink.Enabled() {
		sinks.Register(alertSink)
	}

	sinks.Startup(map[string]string{"config_path": cfg.ConfigPath})

	// The sequence model's real TFLite/ONNX backend is an external
	// collaborator out of scope for this repo (§1); NullModel keeps the
	// standardize-then-invoke adapter exercised end to end with a neutral
	// score until one is wired in.
	predictor := engine.NewSequence(engine.NullModel{}, engine.ColumnStats{})

	normalizer, killRequester, background, err := newPlatformCollector(cfg)
	if err != nil {
		return fmt.Errorf("platform collector: %w", err)
	}

	controller := engine.NewController(
		engine.ParseKillPolicy(string(cfg.KillPolicy)),
		cfg.ThresholdPrediction,
		killRequester,
		cfg.OperatorCommandDir,
		func(f *model.FamilyRecord, score float32) {
			sinks.Kill(f.Snapshot(score), score)
		},
	)

	workerCfg := engine.DefaultWorkerConfig()
	workerCfg.Stride = cfg.ThresholdDriverMsgs
	workerCfg.DecisionThreshold = cfg.ThresholdPrediction
	worker := engine.NewWorker(queue, registry, whitelist, predictor, controller, sinks, clusterRunner, workerCfg)
	worker.Recorder = recorder

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-gctx.Done()
		return normalizer.Close()
	})
	g.Go(func() error {
		if err := normalizer.Run(queue); err != nil && gctx.Err() == nil {
			return fmt.Errorf("collector %s: %w", normalizer.Name(), err)
		}
		return nil
	})
	g.Go(func() error {
		whitelist.RunReloader(gctx.Done())
		return nil
	})
	g.Go(func() error {
		background(gctx.Done())
		return nil
	})
	if rpcServer != nil {
		g.Go(func() error {
			if err := rpcServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("rpc server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return rpcServer.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error {
		workerStop := make(chan struct{})
		go func() {
			<-gctx.Done()
			close(workerStop)
		}()
		worker.Run(workerStop)
		return nil
	})

	log.Printf("owlyshield-predict daemon started (pid=%d, configdir=%s, policy=%s)", os.Getpid(), cfg.ConfigPath, cfg.KillPolicy)
	err = g.Wait()
	log.Printf("owlyshield-predict daemon shutting down")
	return err
}
