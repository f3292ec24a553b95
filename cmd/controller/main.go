package main

import (
	"context"
	"flag"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"

	"github.com/open-quad/controller/domain/diagnostic"
	"github.com/open-quad/controller/pkg/api"
	"github.com/open-quad/controller/pkg/config"
	"github.com/open-quad/controller/pkg/control"
	"github.com/open-quad/controller/pkg/link"
	customlog "github.com/open-quad/controller/pkg/log"
	"github.com/open-quad/controller/pkg/policy"
	"github.com/open-quad/controller/pkg/teleop"
	"github.com/open-quad/controller/pkg/zeromq"
)

func main() {
	configPath := flag.String("config", "config/robot.yaml", "path to the robot configuration file")
	flag.Parse()

	// Config problems are the only fatal start-up condition besides a
	// missing hardware link: the process refuses to run on a bad snapshot.
	cfg, err := config.Load(*configPath)
	if err != nil {
		stdlog.Fatalf("Failed to load configuration: %v", err)
	}

	log, err := customlog.NewLogrusLogger(cfg.Logging.Level, cfg.Logging.LogPath)
	if err != nil {
		stdlog.Fatalf("Failed to initialize logger: %v", err)
	}

	sessionID := uuid.NewString()
	log.Infof("Starting controller for robot '%s' (session %s)", cfg.RobotID, sessionID)

	// Policy load failure degrades to teleop-only; the mode cycle simply
	// skips PolicyWalk.
	policySource, err := policy.Load(cfg.Policy, log)
	if err != nil {
		log.Warnf("Policy unavailable, continuing teleop-only: %v", err)
	}

	hwLink, err := link.Open(cfg.Serial, log)
	if err != nil {
		log.Fatalf("Failed to open hardware link: %v", err)
	}
	hwLink.Start()

	diagService := diagnostic.NewDiagnosticService(sessionID, cfg.RobotID)
	monitors := control.MultiMonitor{diagService}

	var zmqService *zeromq.Service
	var statePublisher *zeromq.StatePublisher
	if cfg.ZeroMQ.PublishBindAddress != "" || cfg.ZeroMQ.RequestBindAddress != "" {
		zmqService, err = zeromq.NewService(cfg.ZeroMQ, sessionID, log)
		if err != nil {
			log.Fatalf("Failed to initialize ZeroMQ service: %v", err)
		}
		zeromq.RegisterStateHandlers(zmqService, cfg, diagService, log)
		zmqService.Start()

		statePublisher = zeromq.NewStatePublisher(zmqService, log)
		monitors = append(monitors, statePublisher)
	}

	machine := control.NewStateMachine(policySource, cfg.Safety.StalenessBound(), monitors, log)
	input := teleop.NewAdapter(cfg.Teleop)
	loop := control.NewLoop(control.LoopConfig{
		Period:               cfg.Period(),
		TeleopTimeout:        cfg.Safety.TeleopTimeout(),
		LinkFailureThreshold: cfg.Safety.LinkFailureThreshold,
	}, machine, hwLink, input, monitors, log)

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		loop.Run(ctx)
	}()

	if statePublisher != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sampleTelemetry(ctx, hwLink, statePublisher)
		}()
	}

	app := fiber.New(fiber.Config{
		AppName:      "Open-Quad Controller",
		ErrorHandler: errorHandler,
	})
	app.Use(logger.New())
	app.Use(recover.New())

	api.RegisterRoutes(app, api.Deps{
		Config:    cfg,
		Diag:      diagService,
		LinkStats: hwLink.Stats,
		PushInput: input.Push,
		SessionID: sessionID,
		Logger:    log,
	})

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.HTTPPort)
		log.Infof("Status server listening on %s", addr)
		if err := app.Listen(addr); err != nil {
			log.Errorf("Status server stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Infof("Shutting down...")

	// Order matters: stop the loop first so the final hold command goes
	// out before the link closes.
	cancel()
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Errorf("Status server forced to shutdown: %v", err)
	}

	if zmqService != nil {
		zmqService.Stop()
	}
	if err := hwLink.Close(); err != nil {
		log.Errorf("Error closing hardware link: %v", err)
	}

	log.Infof("Controller exited")
}

// sampleTelemetry publishes the freshest telemetry at 1 Hz, far below the
// control rate, for offboard monitoring.
func sampleTelemetry(ctx context.Context, hwLink *link.Link, pub *zeromq.StatePublisher) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if t, ok := hwLink.Receive(); ok {
				pub.PublishTelemetry(t)
			}
		}
	}
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}
