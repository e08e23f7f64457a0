// Package adminapi implements the optional HTTP façade: a
// command-channel proxy, a Prometheus exposition endpoint, and a
// read-only websocket diagnostics stream. It never takes a runtime lock
// itself — every route goes through the same command dispatcher and
// STAT queries a service callback would use.
package adminapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/actorcore/actorcored/internal/observability"
)

// CommandFunc executes one administrative verb and returns
// its string result, the same signature internal/command.Dispatcher.Execute
// exposes.
type CommandFunc func(name, arg string) (string, error)

// SnapshotFunc produces the live diagnostics snapshot /debug/stream pushes
// once per second.
type SnapshotFunc func() Snapshot

// Snapshot is the JSON shape pushed to websocket diagnostics clients, a
// STAT-shaped live dashboard payload.
type Snapshot struct {
	DispatchedTotal int64            `json:"dispatched_total"`
	MailboxLengths  map[string]int   `json:"mailbox_lengths"`
	ReactorSlots    int              `json:"reactor_slots_in_use"`
	EndlessServices []string         `json:"endless_services,omitempty"`
}

// Config configures the admin surface. JWTSecret empty means the
// /command route runs open (local/dev mode).
type Config struct {
	Addr      string // fasthttp listener for /command and /metrics
	WSAddr    string // net/http listener for /debug/stream
	JWTSecret string
}

// API owns the admin surface's two listeners.
type API struct {
	cfg      Config
	command  CommandFunc
	snapshot SnapshotFunc
	log      observability.Logger

	httpSrv *fasthttp.Server
	wsSrv   *http.Server
	upgrader websocket.Upgrader

	metricsHandler fasthttp.RequestHandler

	// BoundAddr and BoundWSAddr report the actual listening addresses
	// after Start, useful when Config uses a ":0" ephemeral port.
	BoundAddr   string
	BoundWSAddr string
}

// New wires cmd and snap into an API ready for Start.
func New(cfg Config, cmd CommandFunc, snap SnapshotFunc, log observability.Logger) *API {
	if log == nil {
		log = observability.NewStdLogger()
	}
	return &API{
		cfg:      cfg,
		command:  cmd,
		snapshot: snap,
		log:      log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		metricsHandler: fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(
			observability.DefaultRegistry, promhttp.HandlerOpts{})),
	}
}

// Start launches both listeners in background goroutines and returns
// once they are bound (errors during Serve itself are logged, not
// returned, matching a long-running server's usual lifecycle).
func (a *API) Start() error {
	if a.cfg.Addr != "" {
		ln, err := net.Listen("tcp", a.cfg.Addr)
		if err != nil {
			return fmt.Errorf("adminapi: listen %s: %w", a.cfg.Addr, err)
		}
		a.BoundAddr = ln.Addr().String()
		a.httpSrv = &fasthttp.Server{Handler: a.handleFastHTTP}
		go func() {
			if err := a.httpSrv.Serve(ln); err != nil {
				a.log.Errorf("adminapi: fasthttp server stopped: %v", err)
			}
		}()
	}

	if a.cfg.WSAddr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/debug/stream", a.handleStream)
		a.wsSrv = &http.Server{Addr: a.cfg.WSAddr, Handler: mux}
		ln, err := net.Listen("tcp", a.cfg.WSAddr)
		if err != nil {
			return fmt.Errorf("adminapi: listen %s: %w", a.cfg.WSAddr, err)
		}
		a.BoundWSAddr = ln.Addr().String()
		go func() {
			if err := a.wsSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
				a.log.Errorf("adminapi: websocket server stopped: %v", err)
			}
		}()
	}
	return nil
}

// Stop shuts both listeners down gracefully.
func (a *API) Stop(ctx context.Context) {
	if a.httpSrv != nil {
		a.httpSrv.ShutdownWithContext(ctx)
	}
	if a.wsSrv != nil {
		a.wsSrv.Shutdown(ctx)
	}
}

func (a *API) handleFastHTTP(ctx *fasthttp.RequestCtx) {
	switch string(ctx.Path()) {
	case "/command":
		a.handleCommand(ctx)
	case "/metrics":
		a.handleMetrics(ctx)
	default:
		ctx.SetStatusCode(fasthttp.StatusNotFound)
	}
}

type commandRequest struct {
	Name string `json:"name"`
	Arg  string `json:"arg"`
}

type commandResponse struct {
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (a *API) handleCommand(ctx *fasthttp.RequestCtx) {
	if !ctx.IsPost() {
		ctx.SetStatusCode(fasthttp.StatusMethodNotAllowed)
		return
	}
	if a.cfg.JWTSecret != "" {
		if err := a.checkBearer(ctx); err != nil {
			ctx.SetStatusCode(fasthttp.StatusUnauthorized)
			json.NewEncoder(ctx).Encode(commandResponse{Error: err.Error()})
			return
		}
	}

	var req commandRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		json.NewEncoder(ctx).Encode(commandResponse{Error: "malformed request body"})
		return
	}

	result, err := a.command(req.Name, req.Arg)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		json.NewEncoder(ctx).Encode(commandResponse{Error: err.Error()})
		return
	}
	ctx.SetContentType("application/json")
	json.NewEncoder(ctx).Encode(commandResponse{Result: result})
}

// checkBearer validates the Authorization header's bearer token,
// grounded on the teacher's pkg/web/middleware/auth.JWT default key
// function: reject any signing method family other than HMAC before
// trusting the configured secret, to avoid alg-confusion attacks.
func (a *API) checkBearer(ctx *fasthttp.RequestCtx) error {
	const prefix = "Bearer "
	header := string(ctx.Request.Header.Peek("Authorization"))
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return fmt.Errorf("missing bearer token")
	}
	tokenString := header[len(prefix):]

	_, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return []byte(a.cfg.JWTSecret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	return err
}

func (a *API) handleMetrics(ctx *fasthttp.RequestCtx) {
	a.metricsHandler(ctx)
}

func (a *API) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log.Warnf("adminapi: websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for range ticker.C {
		snap := a.snapshot()
		if err := conn.WriteJSON(snap); err != nil {
			return
		}
	}
}
