// Package proxy implements the raw-socket forwarding pipeline: an Acceptor
// that listens for client connections, and a worker that carries each one
// through parse, cache lookup, upstream dial, and response relay.
//
// This is deliberately not built on net/http: the proxy does not act as an
// HTTP server handling origin-form requests, it forwards absolute-URI
// requests byte-for-byte to whatever host the client names, which is the
// shape net/http's server side does not model.
package proxy

import (
	"context"
	"errors"
	"net"
	"strconv"

	"github.com/gocacheproxy/proxy/internal/cache"
	"github.com/gocacheproxy/proxy/internal/logging"
	"github.com/gocacheproxy/proxy/internal/metrics"
	"github.com/gocacheproxy/proxy/internal/ratelimit"
)

// Acceptor owns the listening socket and spawns one detached goroutine per
// accepted connection. It has no notion of keep-alive or connection
// pooling: every accepted connection is handed to exactly one worker and
// discarded afterwards.
type Acceptor struct {
	addr     string
	cache    *cache.Cache
	log      *logging.Logger
	metrics  *metrics.Metrics
	limiter  *ratelimit.Limiter
	listener net.Listener
}

// New builds an Acceptor bound to ":port". c may be nil to run with caching
// disabled; limiter may be nil to admit every connection unconditionally.
func New(port int, c *cache.Cache, log *logging.Logger, m *metrics.Metrics, limiter *ratelimit.Limiter) *Acceptor {
	if limiter == nil {
		limiter = ratelimit.New(0, 0)
	}
	return &Acceptor{
		addr:    net.JoinHostPort("", strconv.Itoa(port)),
		cache:   c,
		log:     log,
		metrics: m,
		limiter: limiter,
	}
}

// Run listens and serves until ctx is cancelled. Go's net package has no
// listen-backlog knob to match the source's listen(fd, MAX_CLIENTS)
// directly; the OS default backlog applies instead.
func (a *Acceptor) Run(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", a.addr)
	if err != nil {
		return err
	}
	a.listener = ln

	go func() {
		<-ctx.Done()
		a.listener.Close()
	}()

	a.log.Info(ctx, "proxy listening", "addr", a.addr)

	for {
		conn, err := a.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			a.log.Warn(ctx, "accept failed", "error", err.Error())
			continue
		}

		host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
		if err != nil {
			host = conn.RemoteAddr().String()
		}
		if !a.limiter.Allow(host) {
			a.log.Warn(ctx, "connection rejected by rate limiter", "client", host)
			conn.Close()
			continue
		}

		a.metrics.ConnectionAccepted()
		go a.handle(ctx, conn)
	}
}

func (a *Acceptor) handle(ctx context.Context, conn net.Conn) {
	defer a.metrics.ConnectionClosed()
	w := newWorker(conn, a.cache, a.log, a.metrics)
	w.serve(ctx)
}
