// Package relay provides a streaming generation relay: it forwards generation
// requests to an OpenAI-compatible upstream and re-emits the upstream's event
// stream to the consumer as normalized progress, result and error events.
package relay

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"

	"github.com/papercomputeco/genrelay/pkg/auth"
	"github.com/papercomputeco/genrelay/pkg/eventstream/nop"
	"github.com/papercomputeco/genrelay/pkg/sse"
	"github.com/papercomputeco/genrelay/relay/header"
	"github.com/papercomputeco/genrelay/relay/worker"
)

const generatePath = "/v1/generate"

// Server is the relay HTTP server. Every accepted generate request runs as
// one Session; summaries are published asynchronously via its worker pool.
type Server struct {
	config        Config
	opener        Opener
	workerPool    *worker.Pool
	logger        *slog.Logger
	server        *fiber.App
	headerHandler *header.Handler

	closeOnce sync.Once
	closeErr  error
}

// New creates a new Server.
// The opener is injected to start upstream streams.
func New(config Config, opener Opener, logger *slog.Logger) (*Server, error) {
	if opener == nil {
		return nil, errors.New("upstream opener is required")
	}

	if config.Mode == "" {
		config.Mode = ModeTranslate
	}
	if _, err := ParseMode(string(config.Mode)); err != nil {
		return nil, err
	}

	if config.AuthHeader == "" {
		config.AuthHeader = auth.DefaultHeader
	}

	if config.KeepAlive == 0 {
		config.KeepAlive = DefaultKeepAlive
	}

	if config.MaxFrameBytes <= 0 {
		config.MaxFrameBytes = sse.DefaultMaxFrameSize
	}

	if config.Publisher == nil {
		config.Publisher = nop.NewPublisher()
	}

	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
		// Enable streaming
		StreamRequestBody: true,
	})

	// Event streams must reach the consumer frame by frame, so only the
	// plain JSON routes are compressed.
	app.Use(compress.New(compress.Config{
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == generatePath
		},
	}))

	wp, err := worker.NewPool(&worker.Config{
		Publisher: config.Publisher,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:        config,
		opener:        opener,
		workerPool:    wp,
		logger:        logger,
		server:        app,
		headerHandler: header.NewHandler(),
	}

	app.Get("/ping", s.handlePing)

	v1 := app.Group("/v1")
	if config.Authorizer != nil {
		v1.Use(auth.Middleware(config.Authorizer, config.AuthHeader, logger))
	}
	v1.Post("/generate", s.handleGenerate)

	return s, nil
}

// Run starts the relay server on the given listening address
func (s *Server) Run() error {
	s.logger.Info("starting relay server",
		"listen", s.config.ListenAddr,
		"upstream", s.opener.Endpoint(),
		"mode", string(s.config.Mode),
	)

	return s.server.Listen(s.config.ListenAddr)
}

// RunWithListener starts the relay server using the provided listener.
func (s *Server) RunWithListener(listener net.Listener) error {
	s.logger.Info("starting relay server",
		"listen", listener.Addr().String(),
		"upstream", s.opener.Endpoint(),
		"mode", string(s.config.Mode),
	)

	return s.server.Listener(listener)
}

// Handler exposes the relay as a net/http handler, for embedding the relay in
// an existing http.ServeMux.
func (s *Server) Handler() http.Handler {
	return adaptor.FiberApp(s.server)
}

// Close gracefully shuts down the relay and waits for pending session
// summaries to be published.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.server.Shutdown()
		s.workerPool.Close()
	})
	return s.closeErr
}

func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}
