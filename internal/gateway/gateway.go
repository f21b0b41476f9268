// Package gateway exposes one worker engine over HTTP. Requests are
// serialized with a mutex since an engine allows a single call in flight.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/danmuck/mupipe/client"
	"github.com/danmuck/mupipe/internal/observability"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const Version = "0.1.0"

// Engine is the part of client.Engine the gateway drives.
type Engine interface {
	Call(ctx context.Context, name string, args client.Args) (any, error)
	Commands() []client.Command
	State() client.State
	PID() int
	Restarts() int
}

type Gateway struct {
	Name     string
	Addr     string
	Appeared time.Time

	mu     sync.Mutex
	engine Engine
	router *gin.Engine
	logger zerolog.Logger
	server *http.Server
}

func New(name, addr string, engine Engine, corsOrigins []string, logger zerolog.Logger) *Gateway {
	observability.RegisterMetrics()
	logger = logger.With().Str("component", "gateway").Str("gateway", name).Logger()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestID())
	r.Use(observability.RequestLogger(logger))
	r.Use(observability.RequestMetricsMiddleware(name))
	r.Use(cors.New(cors.Config{
		AllowOrigins:  normalizeOrigins(corsOrigins),
		AllowMethods:  []string{"GET", "POST"},
		AllowHeaders:  []string{"Origin", "Content-Type", observability.RequestIDHeader},
		ExposeHeaders: []string{observability.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	g := &Gateway{
		Name:     name,
		Addr:     addr,
		Appeared: time.Now(),
		engine:   engine,
		router:   r,
		logger:   logger,
	}
	g.RegisterRoutes()
	return g
}

func (g *Gateway) HTTPRouter() *gin.Engine {
	return g.router
}

func (g *Gateway) RegisterRoutes() {
	g.router.GET("/health", g.health)
	g.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := g.router.Group("/v1")
	v1.GET("/commands", g.listCommands)
	v1.POST("/commands/:name", g.callCommand)
}

// Serve listens on Addr until ctx is canceled, then shuts down gracefully.
func (g *Gateway) Serve(ctx context.Context) error {
	g.server = &http.Server{
		Addr:              g.Addr,
		Handler:           g.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		g.logger.Info().Str("addr", g.Addr).Msg("gateway listening")
		errCh <- g.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		g.logger.Info().Msg("gateway shutting down")
		return g.server.Shutdown(shutdownCtx)
	}
}

func (g *Gateway) health(c *gin.Context) {
	g.mu.Lock()
	state := g.engine.State()
	pid := g.engine.PID()
	restarts := g.engine.Restarts()
	g.mu.Unlock()

	status := http.StatusOK
	label := "ok"
	if state != client.StateAlive {
		status = http.StatusServiceUnavailable
		label = "degraded"
	}
	c.JSON(status, gin.H{
		"status":   label,
		"uptime":   time.Since(g.Appeared).String(),
		"gateway":  g.Name,
		"version":  Version,
		"worker":   state.String(),
		"pid":      pid,
		"restarts": restarts,
	})
}

type commandInfo struct {
	Name   string `json:"name"`
	Wire   string `json:"wire"`
	Policy string `json:"policy"`
}

func (g *Gateway) listCommands(c *gin.Context) {
	g.mu.Lock()
	cmds := g.engine.Commands()
	g.mu.Unlock()

	list := make([]commandInfo, 0, len(cmds))
	for _, cmd := range cmds {
		list = append(list, commandInfo{Name: cmd.Name, Wire: cmd.Wire, Policy: cmd.Policy.String()})
	}
	c.JSON(http.StatusOK, gin.H{"commands": list})
}

func (g *Gateway) callCommand(c *gin.Context) {
	requestID := observability.RequestIDFrom(c)
	name := c.Param("name")

	args, err := decodeArgs(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"request_id": requestID, "error": err.Error()})
		return
	}

	g.mu.Lock()
	result, err := g.engine.Call(c.Request.Context(), name, args)
	g.mu.Unlock()

	if err != nil {
		status := statusFor(err)
		body := gin.H{"request_id": requestID, "command": name, "error": err.Error()}
		var rerr *client.RemoteError
		if errors.As(err, &rerr) {
			body["code"] = rerr.Code
		}
		g.logger.Warn().
			Err(err).
			Str("request_id", requestID).
			Str("command", name).
			Int("status", status).
			Msg("command failed")
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusOK, gin.H{"request_id": requestID, "command": name, "result": result})
}

// decodeArgs reads a JSON object of arguments. An empty body means no
// arguments. Integral numbers become int64.
func decodeArgs(body io.Reader) (client.Args, error) {
	if body == nil {
		return nil, nil
	}
	dec := json.NewDecoder(body)
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("invalid argument object: %w", err)
	}
	args := make(client.Args, len(raw))
	for k, v := range raw {
		if n, ok := v.(json.Number); ok {
			if i, err := n.Int64(); err == nil {
				args[k] = i
				continue
			}
			f, err := n.Float64()
			if err != nil {
				return nil, fmt.Errorf("argument %q: %w", k, err)
			}
			args[k] = f
			continue
		}
		args[k] = v
	}
	return args, nil
}

func statusFor(err error) int {
	var rerr *client.RemoteError
	switch {
	case errors.As(err, &rerr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, client.ErrUnknownCommand):
		return http.StatusNotFound
	case errors.Is(err, client.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, client.ErrEngineClosed), errors.Is(err, client.ErrSpawnFailed):
		return http.StatusServiceUnavailable
	case errors.Is(err, client.ErrIncompleteFrame), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, client.ErrDeath), errors.Is(err, client.ErrIncompleteStream), errors.Is(err, client.ErrProtocol):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
