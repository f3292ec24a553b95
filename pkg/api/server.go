package api

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/open-quad/controller/domain/diagnostic"
	"github.com/open-quad/controller/pkg/config"
	"github.com/open-quad/controller/pkg/link"
	customlog "github.com/open-quad/controller/pkg/log"
	"github.com/open-quad/controller/pkg/teleop"
)

// Deps bundles everything the HTTP surface reads. All of it is either
// immutable or snapshot-based; no handler can touch control loop state.
type Deps struct {
	Config     *config.Config
	Diag       *diagnostic.DiagnosticService
	LinkStats  func() link.Stats
	PushInput  func(teleop.RawSample)
	SessionID  string
	Logger     customlog.Logger
}

// RegisterRoutes wires the status endpoints and the two websockets.
func RegisterRoutes(app *fiber.App, deps Deps) {
	logger := deps.Logger

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":   "online",
			"service":  "open-quad controller",
			"robot_id": deps.Config.RobotID,
			"session":  deps.SessionID,
		})
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy"})
	})

	apiGroup := app.Group("/api/v1")

	apiGroup.Get("/status", deps.Diag.GetStatusHandler)

	apiGroup.Get("/link", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "success",
			"link":   deps.LinkStats(),
		})
	})

	// The snapshot is immutable; there is deliberately no PUT. Changing
	// policy selection or the serial endpoint requires a restart.
	apiGroup.Get("/config", func(c *fiber.Ctx) error {
		return c.JSON(deps.Config)
	})

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/input", websocket.New(func(conn *websocket.Conn) {
		InputWebSocketHandler(conn, logger, deps.PushInput)
	}))

	app.Get("/ws/state", websocket.New(func(conn *websocket.Conn) {
		StateWebSocketHandler(conn, logger, func() interface{} {
			return deps.Diag.Snapshot()
		}, time.Second)
	}))

	logger.Infof("Registered status API and websocket endpoints")
}
