package http10

import (
	"errors"
	"strings"
	"testing"

	"github.com/proxylab/webproxy/pkg/netio"
)

func TestParseURI(t *testing.T) {
	tests := []struct {
		uri              string
		host, port, path string
	}{
		{"http://example.com/index.html", "example.com", "80", "/index.html"},
		{"http://example.com:8080/index.html", "example.com", "8080", "/index.html"},
		{"http://example.com", "example.com", "80", "/"},
		{"http://example.com:81", "example.com", "81", "/"},
		{"http://example.com/a/b/c?q=1", "example.com", "80", "/a/b/c?q=1"},
		{"http://10.0.0.1:3000/", "10.0.0.1", "3000", "/"},
	}
	for _, tt := range tests {
		host, port, path := ParseURI(tt.uri)
		if host != tt.host || port != tt.port || path != tt.path {
			t.Errorf("ParseURI(%q) = (%q, %q, %q), want (%q, %q, %q)",
				tt.uri, host, port, path, tt.host, tt.port, tt.path)
		}
	}
}

// Round-trip law: reconstructing the URI from its parts gives back the
// input, modulo the default port and the default path.
func TestParseURIRoundTrip(t *testing.T) {
	for _, uri := range []string{
		"http://example.com/index.html",
		"http://example.com:81/p",
		"http://h:8080/a/b",
	} {
		host, port, path := ParseURI(uri)
		rebuilt := "http://" + host
		if port != "80" {
			rebuilt += ":" + port
		}
		rebuilt += path
		if rebuilt != uri {
			t.Errorf("round trip of %q gave %q", uri, rebuilt)
		}
	}
}

func TestParseRequestLine(t *testing.T) {
	line, err := ParseRequestLine([]byte("GET http://a/ HTTP/1.0\r\n"))
	if err != nil {
		t.Fatal(err)
	}
	if line.Method != "GET" || line.URI != "http://a/" || line.Version != "HTTP/1.0" {
		t.Fatalf("parsed %+v", line)
	}

	for _, bad := range []string{"\r\n", "GET\r\n", "GET http://a/\r\n", "a b c d\r\n"} {
		if _, err := ParseRequestLine([]byte(bad)); !errors.Is(err, ErrMalformedRequest) {
			t.Errorf("ParseRequestLine(%q) err = %v, want ErrMalformedRequest", bad, err)
		}
	}
}

func TestRewriteHeadersSynthesizesHost(t *testing.T) {
	client := strings.NewReader("X-Foo: bar\r\nUser-Agent: zzz\r\n\r\n")
	got, err := RewriteHeaders(client, "host", "81", "/p")
	if err != nil {
		t.Fatal(err)
	}
	want := "GET /p HTTP/1.0\r\n" +
		"Host: host:81\r\n" +
		"User-Agent: " + UserAgent + "\r\n" +
		"X-Foo: bar\r\n" +
		"Connection: close\r\n" +
		"Proxy-Connection: close\r\n" +
		"\r\n"
	if string(got) != want {
		t.Fatalf("rewritten block:\n%q\nwant:\n%q", got, want)
	}
}

func TestRewriteHeadersEchoesClientHost(t *testing.T) {
	client := strings.NewReader("host: upstream.example:8080\r\n\r\n")
	got, err := RewriteHeaders(client, "other", "80", "/")
	if err != nil {
		t.Fatal(err)
	}
	// the client's own Host line is echoed verbatim, casing included
	if !strings.Contains(string(got), "host: upstream.example:8080\r\n") {
		t.Fatalf("client Host not echoed:\n%q", got)
	}
	if strings.Contains(string(got), "Host: other:80") {
		t.Fatalf("synthesized Host despite client providing one:\n%q", got)
	}
}

func TestRewriteHeadersDropsConnectionFields(t *testing.T) {
	client := strings.NewReader("Connection: keep-alive\r\nProxy-Connection: keep-alive\r\n\r\n")
	got, err := RewriteHeaders(client, "h", "80", "/")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(got), "keep-alive") {
		t.Fatalf("client connection fields leaked:\n%q", got)
	}
	if !strings.Contains(string(got), "Connection: close\r\nProxy-Connection: close\r\n\r\n") {
		t.Fatalf("overrides missing:\n%q", got)
	}
}

// A field whose name merely begins with "Host" is not the Host field
// and must pass through untouched.
func TestRewriteHeadersNamePrefixCollision(t *testing.T) {
	client := strings.NewReader("Hosting-Plan: gold\r\n\r\n")
	got, err := RewriteHeaders(client, "h", "80", "/")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(got), "Hosting-Plan: gold\r\n") {
		t.Fatalf("prefix-colliding field dropped:\n%q", got)
	}
	if !strings.Contains(string(got), "Host: h:80\r\n") {
		t.Fatalf("Host not synthesized:\n%q", got)
	}
}

func TestRewriteHeadersUnterminatedBlock(t *testing.T) {
	client := strings.NewReader("X-Foo: bar\r\n")
	if _, err := RewriteHeaders(client, "h", "80", "/"); !errors.Is(err, ErrMalformedRequest) {
		t.Fatalf("err %v, want ErrMalformedRequest", err)
	}
}

func TestRewriteHeadersPropagatesLineTooLong(t *testing.T) {
	client := strings.NewReader(strings.Repeat("a", netio.MaxLine+1))
	if _, err := RewriteHeaders(client, "h", "80", "/"); !errors.Is(err, netio.ErrLineTooLong) {
		t.Fatalf("err %v, want ErrLineTooLong", err)
	}
}
