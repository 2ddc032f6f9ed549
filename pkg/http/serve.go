package xhttp

import (
	"reflect"
	"runtime"
	"slices"
	"time"

	"github.com/nimasrn/school-treasury/pkg/logger"
	"github.com/valyala/fasthttp"
)

var (
	defaultReadBufferSize  = 1024 * 4
	defaultWriteBufferSize = 1024 * 4
	defaultReadTimeout     = time.Millisecond * 2500
	defaultWriteTimeout    = time.Millisecond * 2500
)

type ServerOption struct {
	Name string

	// if we keep open idle connections for too long,
	// we can get too many open files error
	IdleTimeout time.Duration

	// postings are small JSON documents, anything bigger is rejected
	MaxRequestBodySize int

	ReadBufferSize  int
	WriteBufferSize int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	Concurrency     int
	MaxConnsPerIP   int

	Logger logger.Logger
}

var DefaultServerOption = ServerOption{
	Name:               "school-treasury",
	IdleTimeout:        time.Second * 10,
	MaxRequestBodySize: 256 * 1024,
	ReadBufferSize:     defaultReadBufferSize,
	WriteBufferSize:    defaultWriteBufferSize,
	ReadTimeout:        defaultReadTimeout,
	WriteTimeout:       defaultWriteTimeout,
	Concurrency:        10_000,
	MaxConnsPerIP:      1_000,
}

// WithTimeouts overrides read/write timeouts given in milliseconds; zero keeps the default.
func (o ServerOption) WithTimeouts(readMs, writeMs int) ServerOption {
	if readMs > 0 {
		o.ReadTimeout = time.Duration(readMs) * time.Millisecond
	}
	if writeMs > 0 {
		o.WriteTimeout = time.Duration(writeMs) * time.Millisecond
	}
	return o
}

type Server = fasthttp.Server

type Engine struct {
	*Router
	*Server
	option ServerOption
	middle []MiddlewareFunc
}

func newServer(options ServerOption) *fasthttp.Server {
	lg := options.Logger
	if lg == nil {
		lg = logger.GetLogger().Named("xhttp")
	}
	return &fasthttp.Server{
		Handler:               NotFoundHandler,
		Name:                  options.Name,
		Concurrency:           options.Concurrency,
		ReadBufferSize:        options.ReadBufferSize,
		WriteBufferSize:       options.WriteBufferSize,
		ReadTimeout:           options.ReadTimeout,
		WriteTimeout:          options.WriteTimeout,
		IdleTimeout:           options.IdleTimeout,
		MaxConnsPerIP:         options.MaxConnsPerIP,
		MaxRequestBodySize:    options.MaxRequestBodySize,
		TCPKeepalive:          true,
		NoDefaultServerHeader: true,
		NoDefaultContentType:  true,
		CloseOnShutdown:       true,
		ErrorHandler: func(ctx *RequestCtx, err error) {
			logger.Warn("error", "error", err)
		},
		Logger: lg,
	}
}

func NewServer(options ServerOption) *Engine {
	return &Engine{
		Server: newServer(options),
		Router: CreateDefaultRouter(),
		option: options,
	}
}

func (e *Engine) ListenAndServe(addr string) error {
	if err := e.DoRouting(); err != nil {
		return err
	}
	e.Server.Logger.Printf("server is listening on %s", addr)
	return e.Server.ListenAndServe(addr)
}

func (e *Engine) DoRouting() error {
	for method, route := range e.Router.List() {
		for _, r := range route {
			e.Server.Logger.Printf("method: %s, path: %s", method, r)
		}
	}
	e.Server.Handler = e.Router.Handler
	// wrap in reverse so the first registered middleware runs first
	middle := slices.Clone(e.middle)
	slices.Reverse(middle)
	for i, m := range middle {
		e.Server.Handler = m(e.Server.Handler)
		e.Server.Logger.Printf("middleware %d registered - %s", i+1, runtime.FuncForPC(reflect.ValueOf(m).Pointer()).Name())
	}
	return nil
}

// Use adds middleware to the chain which is run for every request.
func (e *Engine) Use(middleware MiddlewareFunc) {
	e.middle = append(e.middle, middleware)
}

// Shutdown gracefully shuts down the server without interrupting any active connections.
func (e *Engine) Shutdown() {
	e.Server.Logger.Printf("server is shutting down")
	if err := e.Server.Shutdown(); err != nil {
		e.Server.Logger.Printf("error while shutting down: %v", err)
	}
}
