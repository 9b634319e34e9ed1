package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	domrepo "ArbPull/internal/domain/repository"
	mid "ArbPull/internal/middleware"
	"ArbPull/internal/service/peers"
	"ArbPull/internal/usecase"
	"ArbPull/pkg/config"
	xhttp "ArbPull/pkg/http"
	pkgkafka "ArbPull/pkg/kafka"
	applogger "ArbPull/pkg/logger"
	"ArbPull/pkg/scheduler"
)

const tickJob = "tick"

// App encapsulates the engine lifecycle: the tick schedule, the record
// pipeline, the peer source and the status API.
type App struct {
	cfg          *config.Config
	log          *applogger.Logger
	orchestrator *usecase.TickOrchestrator
	pipeline     *mid.RecordPipeline
	scheduler    *scheduler.Scheduler
	httpServer   *xhttp.Server
	peers        domrepo.PeerSource
	consumer     *pkgkafka.Consumer

	wg sync.WaitGroup
}

// New creates a new App instance with all dependencies. consumer is nil
// unless peers are counted from Kafka heartbeats.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	orchestrator *usecase.TickOrchestrator,
	pipeline *mid.RecordPipeline,
	sched *scheduler.Scheduler,
	httpServer *xhttp.Server,
	peerSource domrepo.PeerSource,
	consumer *pkgkafka.Consumer,
) *App {
	return &App{
		cfg:          cfg,
		log:          log,
		orchestrator: orchestrator,
		pipeline:     pipeline,
		scheduler:    sched,
		httpServer:   httpServer,
		peers:        peerSource,
		consumer:     consumer,
	}
}

// Run starts the application and blocks until ctx is done or the HTTP
// server fails. Shutdown lets an in-flight tick settle.
func (a *App) Run(ctx context.Context) error {
	if err := a.orchestrator.Restore(ctx); err != nil {
		return err
	}
	a.pipeline.Start(ctx)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.startPeers(runCtx); err != nil {
		_ = a.pipeline.Close()
		return err
	}
	if err := a.scheduler.Add(tickJob, scheduler.Every(a.cfg.Engine.TickInterval), a.tick); err != nil {
		_ = a.pipeline.Close()
		return err
	}
	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		_ = a.pipeline.Close()
		return err
	}
	a.scheduler.Start()

	// first tick without waiting a full interval
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.scheduler.RunNow(tickJob); err != nil {
			a.log.Warn("initial tick failed", applogger.Error(err))
		}
	}()

	a.log.Info("engine started",
		applogger.String("env", a.cfg.Environment),
		applogger.Duration("tick_interval", a.cfg.Engine.TickInterval),
		applogger.String("recorder", a.cfg.Recorder.Backend),
		applogger.String("peers", a.cfg.Peers.Type),
	)

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
	case err := <-a.httpServer.Err():
		runErr = fmt.Errorf("http server: %w", err)
	}
	cancel()
	a.shutdown()
	return runErr
}

// tick runs one orchestrator tick. Overlap and a lease held elsewhere are
// skips, not failures.
func (a *App) tick(ctx context.Context) error {
	rec, err := a.orchestrator.Tick(ctx)
	switch {
	case errors.Is(err, usecase.ErrTickInProgress), errors.Is(err, usecase.ErrLeaseHeld):
		a.log.Debug("tick skipped", applogger.String("reason", err.Error()))
		return nil
	case err != nil:
		return err
	}

	fields := []applogger.Field{
		applogger.Uint64("seq", rec.Seq),
		applogger.String("status", string(rec.Status)),
		applogger.String("phase", string(rec.Phase)),
		applogger.Int("accepted", len(rec.Accepted)),
		applogger.Int("dispatched", len(rec.Dispatches)),
		applogger.String("profit", rec.RecognizedProfit.String()),
		applogger.Duration("duration", rec.FinishedAt.Sub(rec.StartedAt)),
	}
	if len(rec.Errors) > 0 {
		a.log.Warn("tick finished with errors", append(fields, applogger.Int("errors", len(rec.Errors)))...)
		return nil
	}
	a.log.Info("tick finished", fields...)
	return nil
}

func (a *App) startPeers(ctx context.Context) error {
	switch src := a.peers.(type) {
	case *peers.Client:
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			src.Run(ctx)
		}()
	case *peers.Heartbeats:
		if a.consumer == nil {
			return fmt.Errorf("kafka peers need a consumer")
		}
		if err := a.consumer.RegisterHandler(src); err != nil {
			return err
		}
		if err := a.consumer.Start(ctx); err != nil {
			return fmt.Errorf("start peer consumer: %w", err)
		}
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			src.Run(ctx, a.cfg.Peers.HeartbeatInterval)
		}()
	}
	return nil
}

// shutdown gracefully stops all services.
func (a *App) shutdown() {
	a.log.Info("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout+a.cfg.Engine.SettleTimeout)
	defer cancel()

	if err := a.scheduler.Stop(ctx); err != nil {
		a.log.Warn("scheduler stop error", applogger.Error(err))
	}

	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.log.Warn("background workers still running at shutdown")
	}

	// a standby engine can take the next tick before the TTL runs out
	if err := a.orchestrator.ReleaseLease(ctx); err != nil {
		a.log.Warn("lease release error", applogger.Error(err))
	}

	// flush buffered tick records and close the audit backend
	start := time.Now()
	if err := a.pipeline.Close(); err != nil {
		a.log.Warn("record pipeline close error", applogger.Error(err))
	}
	a.log.Info("shutdown complete", applogger.Duration("flush", time.Since(start)))
}
