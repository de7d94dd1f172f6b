package httpreq

import "testing"

// TestParseAbsoluteURI verifies a standard forward-proxy request line with
// an explicit scheme, host, port and path parses into its component parts.
func TestParseAbsoluteURI(t *testing.T) {
	raw := "GET http://example.com:8080/index.html HTTP/1.1\r\nHost: example.com\r\n\r\n"

	pr, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	if pr.Method != "GET" {
		t.Errorf("Method = %q, want GET", pr.Method)
	}
	if pr.Protocol != "http" {
		t.Errorf("Protocol = %q, want http", pr.Protocol)
	}
	if pr.Host != "example.com" {
		t.Errorf("Host = %q, want example.com", pr.Host)
	}
	if pr.Port != "8080" {
		t.Errorf("Port = %q, want 8080", pr.Port)
	}
	if pr.Path != "/index.html" {
		t.Errorf("Path = %q, want /index.html", pr.Path)
	}
	if pr.Version != "HTTP/1.1" {
		t.Errorf("Version = %q, want HTTP/1.1", pr.Version)
	}
}

// TestParseDefaults verifies the protocol, path and port default when the
// request URI omits them.
func TestParseDefaults(t *testing.T) {
	raw := "GET example.com HTTP/1.0\r\n\r\n"

	pr, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	if pr.Protocol != "http" {
		t.Errorf("Protocol = %q, want http", pr.Protocol)
	}
	if pr.Path != "/" {
		t.Errorf("Path = %q, want /", pr.Path)
	}
	if pr.Port != "80" {
		t.Errorf("Port = %q, want 80", pr.Port)
	}
	if pr.Host != "example.com" {
		t.Errorf("Host = %q, want example.com", pr.Host)
	}
}

// TestParseMissingHost verifies a request URI with no host at all still
// parses successfully, leaving Host empty for the caller to check — Parse
// only rejects structurally malformed request lines, not semantically
// incomplete ones.
func TestParseMissingHost(t *testing.T) {
	raw := "GET / HTTP/1.1\r\n\r\n"

	pr, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if pr.Host != "" {
		t.Errorf("Host = %q, want empty", pr.Host)
	}
}

// TestParseTooShort verifies buffers under MinRequestLen are rejected
// immediately rather than scanned.
func TestParseTooShort(t *testing.T) {
	if _, err := Parse([]byte("GE")); err == nil {
		t.Error("expected error for undersized buffer")
	}
}

// TestParseNoCRLF verifies a request line with no terminating CRLF is
// rejected.
func TestParseNoCRLF(t *testing.T) {
	if _, err := Parse([]byte("GET http://example.com/ HTTP/1.1")); err == nil {
		t.Error("expected error for missing CRLF")
	}
}

// TestHeaderCaseInsensitive verifies GetHeader, SetHeader and RemoveHeader
// all match keys case-insensitively.
func TestHeaderCaseInsensitive(t *testing.T) {
	raw := "GET http://example.com/ HTTP/1.1\r\nHost: example.com\r\nUser-Agent: test\r\n\r\n"
	pr, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	if v, ok := pr.GetHeader("host"); !ok || v != "example.com" {
		t.Errorf("GetHeader(host) = %q, %v, want example.com, true", v, ok)
	}

	pr.SetHeader("HOST", "other.com")
	if v, _ := pr.GetHeader("Host"); v != "other.com" {
		t.Errorf("after SetHeader(HOST), GetHeader(Host) = %q, want other.com", v)
	}

	pr.RemoveHeader("user-agent")
	if _, ok := pr.GetHeader("User-Agent"); ok {
		t.Error("expected User-Agent to be removed")
	}
}

// TestSetHeaderPreservesOrder verifies overwriting an existing header keeps
// its original position rather than moving it to the end.
func TestSetHeaderPreservesOrder(t *testing.T) {
	pr := &ParsedRequest{Method: "GET", Path: "/", Version: "HTTP/1.1"}
	pr.SetHeader("A", "1")
	pr.SetHeader("B", "2")
	pr.SetHeader("A", "3")

	out := pr.UnparseHeaders()
	want := "A: 3\r\nB: 2\r\n\r\n"
	if out != want {
		t.Errorf("UnparseHeaders() = %q, want %q", out, want)
	}
}

// TestUnparseRoundTrip verifies that unparsing a parsed request reproduces
// an equivalent request line and header block, and that the length helpers
// agree with the actual rendered length.
func TestUnparseRoundTrip(t *testing.T) {
	raw := "POST http://example.com/submit HTTP/1.1\r\nContent-Length: 5\r\n\r\n"
	pr, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	line := pr.UnparseRequestLine()
	if line != "POST /submit HTTP/1.1\r\n" {
		t.Errorf("UnparseRequestLine() = %q", line)
	}
	if len(line) != pr.RequestLineLen() {
		t.Errorf("RequestLineLen() = %d, actual rendered length %d", pr.RequestLineLen(), len(line))
	}

	headers := pr.UnparseHeaders()
	if len(headers) != pr.HeadersLen() {
		t.Errorf("HeadersLen() = %d, actual rendered length %d", pr.HeadersLen(), len(headers))
	}

	full := pr.Unparse()
	if full != line+headers {
		t.Error("Unparse() did not equal UnparseRequestLine()+UnparseHeaders()")
	}
}
