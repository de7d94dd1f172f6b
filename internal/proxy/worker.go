package proxy

import (
	"context"
	"fmt"
	"io"
	"net"

	"github.com/gocacheproxy/proxy/internal/cache"
	"github.com/gocacheproxy/proxy/internal/config"
	"github.com/gocacheproxy/proxy/internal/httpreq"
	"github.com/gocacheproxy/proxy/internal/logging"
	"github.com/gocacheproxy/proxy/internal/metrics"
	"go.opentelemetry.io/otel/attribute"
)

// worker carries one accepted connection through parse, cache lookup,
// upstream dial, forward, and relay. A new worker is built per connection;
// nothing about it is shared or reused.
type worker struct {
	conn       net.Conn
	cache      *cache.Cache // nil when caching is disabled
	log        *logging.Logger
	metrics    *metrics.Metrics
	dial       func(ctx context.Context, network, addr string) (net.Conn, error)
	maxReqSize int
}

func newWorker(conn net.Conn, c *cache.Cache, log *logging.Logger, m *metrics.Metrics) *worker {
	return &worker{
		conn:       conn,
		cache:      c,
		log:        log,
		metrics:    m,
		dial:       (&net.Dialer{}).DialContext,
		maxReqSize: config.MaxRequestSize,
	}
}

// serve runs the full connection lifecycle and always closes conn before
// returning, mirroring the source's handle_connection: read one request,
// resolve it from cache or upstream, and tear the connection down. There is
// no keep-alive — every request gets exactly one response and the
// connection closes.
func (w *worker) serve(ctx context.Context) {
	defer w.conn.Close()

	ctx, span := w.log.StartSpan(ctx, "proxy.connection",
		attribute.String("net.peer.addr", w.conn.RemoteAddr().String()),
		attribute.Bool("cache.enabled", w.cache != nil),
	)
	defer span.End()

	buf := make([]byte, w.maxReqSize)
	n, err := w.conn.Read(buf)
	if err != nil || n == 0 {
		// A client that disconnects before sending anything is not an
		// error worth a response; there is nothing to answer.
		return
	}

	req, err := httpreq.Parse(buf[:n])
	if err != nil {
		w.log.Warn(ctx, "malformed request", "error", err.Error())
		w.writeError(400)
		return
	}

	if req.Host == "" {
		w.log.Warn(ctx, "request missing host")
		w.writeError(400)
		return
	}

	key := fmt.Sprintf("%s://%s:%s%s", req.Protocol, req.Host, req.Port, req.Path)
	w.log.Info(ctx, "request received", "key", key, "method", req.Method)

	if w.cache != nil {
		if data, _, ok := w.cache.Get(key); ok {
			span.SetAttributes(attribute.String("cache.status", "hit"))
			w.log.Info(ctx, "cache hit", "key", key)
			if _, err := w.conn.Write(data); err != nil {
				w.log.Error(ctx, "write to client failed", err, "key", key)
			}
			return
		}
		span.SetAttributes(attribute.String("cache.status", "miss"))
		w.log.Info(ctx, "cache miss", "key", key)
	}

	w.forward(ctx, req, key)
}

// forward dials the request's host, rewrites it for origin delivery, sends
// it, and relays the response back to the client byte for byte while
// simultaneously capturing it for the cache. Grounded on the source's
// forward_request_and_get_response.
func (w *worker) forward(ctx context.Context, req *httpreq.ParsedRequest, key string) {
	addr := net.JoinHostPort(req.Host, req.Port)
	upstream, err := w.dial(ctx, "tcp", addr)
	if err != nil {
		w.log.Error(ctx, "upstream dial failed", err, "addr", addr)
		w.metrics.UpstreamError("connect")
		w.writeError(502)
		return
	}
	defer upstream.Close()

	// Rewrite for origin delivery: absolute-URI becomes origin-form, the
	// connection is forced to close after one response, and HTTP/1.0 keeps
	// us from having to speak chunked transfer-encoding to the origin.
	req.SetHeader("Host", req.Host)
	req.SetHeader("Connection", "close")
	req.Version = "HTTP/1.0"

	if _, err := io.WriteString(upstream, req.Unparse()); err != nil {
		w.log.Error(ctx, "write to upstream failed", err, "addr", addr)
		w.metrics.UpstreamError("send")
		w.writeError(502)
		return
	}

	w.relay(ctx, upstream, key)
}

// relay streams the upstream response to the client a chunk at a time while
// growing a capture buffer alongside it. The two failure modes are handled
// asymmetrically: a read error from upstream means the capture is an
// incomplete response, so admission is cancelled outright, since a partial
// body cached under a full-response key would be indistinguishable from a
// complete one on the next hit. A write error to the client, by contrast,
// stops relaying to a client that is no longer listening but does not
// taint what was already read from upstream, so the loop exits and
// whatever was captured so far is still admitted.
func (w *worker) relay(ctx context.Context, upstream net.Conn, key string) {
	chunk := make([]byte, w.maxReqSize)
	var capture []byte
	capturing := w.cache != nil

	for {
		n, rerr := upstream.Read(chunk)
		if n > 0 {
			if _, werr := w.conn.Write(chunk[:n]); werr != nil {
				w.log.Error(ctx, "write to client failed", werr, "key", key)
				break
			}
			w.metrics.BytesForwarded(n)

			if capturing {
				capture = append(capture, chunk[:n]...)
			}
		}
		if rerr != nil {
			if rerr != io.EOF {
				w.log.Error(ctx, "read from upstream failed", rerr, "key", key)
				w.metrics.UpstreamError("recv")
				capturing = false
			}
			break
		}
	}

	if capturing && len(capture) > 0 {
		w.cache.Put(key, capture, len(capture))
	}
}

func (w *worker) writeError(status int) {
	_, _ = w.conn.Write(errorResponse(status))
}
