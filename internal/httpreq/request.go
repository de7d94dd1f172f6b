// Package httpreq parses and re-serializes the single HTTP/1.x request line
// the proxy reads from a client connection. It is a purpose-built parser,
// not a net/http.Request: the proxy never constructs a Go http.Request
// because it forwards bytes, not decoded semantics, and the request line it
// receives carries an absolute-URI (method, scheme://host:port/path,
// version) rather than the origin-form net/http expects from a server
// handler.
package httpreq

import (
	"fmt"
	"strings"
)

// MinRequestLen is the shortest buffer ParsedRequest.Parse will accept.
const MinRequestLen = 4

const defaultNHdrs = 8

// header is one request header, kept in insertion order.
type header struct {
	key   string
	value string
}

// ParsedRequest is the decoded form of one client request line plus its
// headers. Zero value is not useful; build one with Parse.
type ParsedRequest struct {
	Method   string
	Protocol string
	Host     string
	Port     string
	Path     string
	Version  string

	headers []header
}

// Parse decodes buf as an HTTP/1.x request: a request line terminated by
// CRLF, followed by zero or more "Key: Value" header lines, each terminated
// by CRLF. It stops at the first header section; any body bytes after the
// blank line are left untouched by the caller.
//
// Protocol defaults to "http" and Path to "/" when the request URI omits
// them, and Port defaults to "80" when the host has none — matching the
// absolute-URI grammar a forward proxy's clients are expected to send:
// "METHOD [scheme://]host[:port][/path] VERSION".
//
// A request line missing a host entirely (e.g. "GET / HTTP/1.1") parses
// successfully with Host left empty, rather than being rejected here —
// callers that need a host to dial are expected to check ParsedRequest.Host
// themselves, distinct from a structurally malformed request line.
func Parse(buf []byte) (*ParsedRequest, error) {
	if len(buf) < MinRequestLen {
		return nil, fmt.Errorf("httpreq: request too short (%d bytes)", len(buf))
	}

	s := string(buf)
	lineEnd := strings.Index(s, "\r\n")
	if lineEnd < 0 {
		return nil, fmt.Errorf("httpreq: no CRLF terminating request line")
	}

	pr := &ParsedRequest{headers: make([]header, 0, defaultNHdrs)}
	if err := pr.parseRequestLine(s[:lineEnd]); err != nil {
		return nil, err
	}

	rest := s[lineEnd+2:]
	for len(rest) > 0 && !strings.HasPrefix(rest, "\r\n") {
		end := strings.Index(rest, "\r\n")
		if end < 0 {
			break
		}
		line := rest[:end]
		rest = rest[end+2:]

		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			continue
		}
		key := line[:colon]
		value := strings.TrimLeft(line[colon+1:], " ")
		pr.SetHeader(key, value)
	}

	return pr, nil
}

func (pr *ParsedRequest) parseRequestLine(line string) error {
	sp1 := strings.IndexByte(line, ' ')
	if sp1 < 0 {
		return fmt.Errorf("httpreq: malformed request line %q", line)
	}
	pr.Method = line[:sp1]

	uriAndVersion := line[sp1+1:]
	sp2 := strings.LastIndexByte(uriAndVersion, ' ')
	if sp2 < 0 {
		return fmt.Errorf("httpreq: malformed request line %q", line)
	}
	uri := uriAndVersion[:sp2]
	pr.Version = uriAndVersion[sp2+1:]

	hostPort := uri
	if idx := strings.Index(uri, "://"); idx >= 0 {
		pr.Protocol = uri[:idx]
		hostPort = uri[idx+3:]
	} else {
		pr.Protocol = "http"
	}

	if idx := strings.IndexByte(hostPort, '/'); idx >= 0 {
		pr.Path = hostPort[idx:]
		hostPort = hostPort[:idx]
	} else {
		pr.Path = "/"
	}

	if idx := strings.IndexByte(hostPort, ':'); idx >= 0 {
		pr.Host = hostPort[:idx]
		pr.Port = hostPort[idx+1:]
	} else {
		pr.Host = hostPort
		pr.Port = "80"
	}

	return nil
}

// RequestLineLen reports the length of the request line unparse would
// produce, "METHOD PATH VERSION\r\n", without allocating it.
func (pr *ParsedRequest) RequestLineLen() int {
	return len(pr.Method) + 1 + len(pr.Path) + 1 + len(pr.Version) + 2
}

// UnparseRequestLine renders "METHOD PATH VERSION\r\n". It deliberately
// drops scheme/host/port: once the proxy has resolved where to dial, the
// line it sends upstream is origin-form, matching what an origin server
// expects to receive.
func (pr *ParsedRequest) UnparseRequestLine() string {
	var b strings.Builder
	b.Grow(pr.RequestLineLen())
	b.WriteString(pr.Method)
	b.WriteByte(' ')
	b.WriteString(pr.Path)
	b.WriteByte(' ')
	b.WriteString(pr.Version)
	b.WriteString("\r\n")
	return b.String()
}

// HeadersLen reports the length UnparseHeaders would produce, including the
// trailing blank-line CRLF that ends the header section.
func (pr *ParsedRequest) HeadersLen() int {
	n := 0
	for _, h := range pr.headers {
		n += len(h.key) + len(h.value) + 4 // ": " + "\r\n"
	}
	return n + 2
}

// UnparseHeaders renders every header as "Key: Value\r\n" in insertion
// order, followed by the blank line ending the header section.
func (pr *ParsedRequest) UnparseHeaders() string {
	var b strings.Builder
	b.Grow(pr.HeadersLen())
	for _, h := range pr.headers {
		b.WriteString(h.key)
		b.WriteString(": ")
		b.WriteString(h.value)
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")
	return b.String()
}

// Unparse renders the full request: request line, headers, and the blank
// line ending the header section.
func (pr *ParsedRequest) Unparse() string {
	return pr.UnparseRequestLine() + pr.UnparseHeaders()
}

// GetHeader retrieves a header by key, case-insensitively. ok is false when
// no header with that key is present.
func (pr *ParsedRequest) GetHeader(key string) (value string, ok bool) {
	if i := pr.indexOf(key); i >= 0 {
		return pr.headers[i].value, true
	}
	return "", false
}

// SetHeader inserts key/value, or overwrites the value in place (preserving
// position) if key is already present, case-insensitively.
func (pr *ParsedRequest) SetHeader(key, value string) {
	if i := pr.indexOf(key); i >= 0 {
		pr.headers[i].value = value
		return
	}
	pr.headers = append(pr.headers, header{key: key, value: value})
}

// RemoveHeader deletes the header matching key, case-insensitively. It is a
// no-op if no such header is present.
func (pr *ParsedRequest) RemoveHeader(key string) {
	if i := pr.indexOf(key); i >= 0 {
		pr.headers = append(pr.headers[:i], pr.headers[i+1:]...)
	}
}

func (pr *ParsedRequest) indexOf(key string) int {
	for i, h := range pr.headers {
		if strings.EqualFold(h.key, key) {
			return i
		}
	}
	return -1
}
