package http10

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/proxylab/webproxy/pkg/netio"
)

// UserAgent is the fixed User-Agent field value sent to origins,
// regardless of what the client provided.
const UserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:10.0.3) Gecko/20120305 Firefox/10.0.3"

// ErrMalformedRequest is returned when a request line or header block
// cannot be parsed.
var ErrMalformedRequest = errors.New("malformed request")

// RequestLine holds the three tokens of an HTTP request line.
type RequestLine struct {
	Method  string
	URI     string
	Version string
}

// ParseRequestLine splits a request line into its three
// whitespace-separated tokens.
func ParseRequestLine(line []byte) (RequestLine, error) {
	fields := strings.Fields(string(line))
	if len(fields) != 3 {
		return RequestLine{}, fmt.Errorf("%w: bad request line %q", ErrMalformedRequest, bytes.TrimRight(line, "\r\n"))
	}
	return RequestLine{Method: fields[0], URI: fields[1], Version: fields[2]}, nil
}

// ParseURI splits an absolute-form HTTP URI of shape
// http://host[:port]/path into host, port and path. The port defaults
// to "80" and the path to "/". The port is not validated here; the
// dialer rejects anything unusable.
func ParseURI(uri string) (host, port, path string) {
	rest := uri
	if i := strings.Index(rest, "//"); i != -1 {
		rest = rest[i+2:]
	}
	authority := rest
	path = "/"
	if i := strings.IndexByte(rest, '/'); i != -1 {
		authority = rest[:i]
		path = rest[i:]
	}
	host = authority
	port = "80"
	if i := strings.IndexByte(authority, ':'); i != -1 {
		host = authority[:i]
		port = authority[i+1:]
	}
	return host, port, path
}

// hasFieldName reports whether line begins with the given header field
// name. The name must include the trailing colon, and the comparison is
// case-insensitive, so a name like "Host:" does not match a field
// called "Hosting-Plan".
func hasFieldName(line []byte, name string) bool {
	return len(line) >= len(name) && strings.EqualFold(string(line[:len(name)]), name)
}

// RewriteHeaders consumes the client's header block from r (positioned
// just after the request line) and returns the origin-bound header
// block. The output ordering is fixed: request line, Host field
// (client's own if provided, synthesized from host and port otherwise),
// the proxy's User-Agent, every other client field in the order it was
// sent, and the Connection / Proxy-Connection overrides.
//
// Client-provided User-Agent, Connection and Proxy-Connection fields
// are dropped in favor of the proxy's own. A header block that ends
// before the blank line is reported as ErrMalformedRequest; other read
// failures are returned as-is.
func RewriteHeaders(r io.Reader, host, port, path string) ([]byte, error) {
	hostField := fmt.Sprintf("Host: %s:%s\r\n", host, port)
	var passthrough bytes.Buffer

	for {
		line, err := netio.ReadLine(r)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, fmt.Errorf("%w: header block not terminated", ErrMalformedRequest)
			}
			return nil, err
		}
		if bytes.Equal(line, []byte("\r\n")) {
			break
		}
		switch {
		case hasFieldName(line, "Host:"):
			hostField = string(line)
		case hasFieldName(line, "User-Agent:"),
			hasFieldName(line, "Connection:"),
			hasFieldName(line, "Proxy-Connection:"):
			// replaced by the proxy's own fields below
		default:
			passthrough.Write(line)
		}
	}

	var out bytes.Buffer
	fmt.Fprintf(&out, "GET %s HTTP/1.0\r\n", path)
	out.WriteString(hostField)
	out.WriteString("User-Agent: " + UserAgent + "\r\n")
	out.Write(passthrough.Bytes())
	out.WriteString("Connection: close\r\n")
	out.WriteString("Proxy-Connection: close\r\n")
	out.WriteString("\r\n")
	return out.Bytes(), nil
}
