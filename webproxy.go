package webproxy

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/proxylab/webproxy/cache"
	"github.com/proxylab/webproxy/pkg/http10"
	"github.com/proxylab/webproxy/pkg/netio"
)

// Config carries everything needed to construct a Proxy.
type Config struct {
	// Port to listen on for proxy connections.
	Port int
	// Storage for cached responses.
	// An in-memory LRU store is used if nil.
	Store cache.Store
	// Address for the management API listener.
	// The management API is disabled if empty.
	ManagementAddr string
	// Logger to use. A new console logger writing to stdout is used
	// if nil.
	Logger *zerolog.Logger
}

// Proxy is a concurrent forwarding HTTP/1.0 proxy with an object
// cache. Each accepted connection is handled on its own goroutine;
// connections share nothing but the cache.
type Proxy struct {
	store    cache.Store
	log      zerolog.Logger
	port     int
	mgmtAddr string
	listener net.Listener
}

// New sets up a Proxy from the given config. Call Run to start it.
func New(config Config) *Proxy {
	// use console logger if not specified in config
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}

	store := config.Store
	if store == nil {
		store = cache.NewLRU()
	}

	return &Proxy{
		store:    store,
		log:      logger.With().Int("port", config.Port).Logger(),
		port:     config.Port,
		mgmtAddr: config.ManagementAddr,
	}
}

// Run binds the listen socket and accepts connections until the
// listener fails or Close is called. Each connection gets its own
// goroutine, which owns the client stream and closes it when the
// handler returns. Timeouts on accept are logged and the loop
// continues; any other accept failure ends Run with an error.
func (p *Proxy) Run() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", p.port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	p.listener = ln

	if p.mgmtAddr != "" {
		go p.serveManagement()
	}

	p.log.Info().Str("addr", ln.Addr().String()).Msg("Proxy listening")

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				p.log.Warn().Err(err).Msg("Transient accept error")
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}
		go func() {
			defer conn.Close()
			p.handle(conn)
		}()
	}
}

// Close shuts down the listener and closes the store (the in-memory
// store evicts all entries).
func (p *Proxy) Close() error {
	if p.listener != nil {
		p.listener.Close()
	}
	return p.store.Close()
}

// handle runs one request from request line to teardown. Any failure
// drops the request; the proxy never synthesizes an HTTP error
// response, so the client sees a closed (possibly truncated) stream.
func (p *Proxy) handle(conn net.Conn) {
	log := p.log.With().
		Str("request", uuid.NewString()).
		Str("client", conn.RemoteAddr().String()).
		Logger()

	line, err := netio.ReadLine(conn)
	if err != nil {
		log.Debug().Err(err).Msg("Could not read request line")
		return
	}
	reqLine, err := http10.ParseRequestLine(line)
	if err != nil {
		log.Debug().Err(err).Msg("Could not parse request line")
		return
	}
	if !strings.EqualFold(reqLine.Method, "GET") {
		log.Debug().Str("method", reqLine.Method).Msg("Ignoring non-GET request")
		return
	}

	host, port, path := http10.ParseURI(reqLine.URI)
	// Cache key is host plus path, so the default and explicit port 80
	// spellings of the same resource collide.
	key := host + path
	log = log.With().Str("key", key).Logger()

	buf := make([]byte, cache.MaxObjectSize)
	if n, status := p.store.Lookup(key, buf); status == cache.Hit {
		if _, err := netio.WriteAll(conn, buf[:n]); err != nil {
			log.Debug().Err(err).Msg("Could not write cached response")
			return
		}
		log.Debug().Int("bytes", n).Msg("Served from cache")
		return
	}

	header, err := http10.RewriteHeaders(conn, host, port, path)
	if err != nil {
		log.Debug().Err(err).Msg("Could not rewrite request header")
		return
	}

	origin, err := p.dialOrigin(host, port)
	if err != nil {
		log.Warn().Err(err).Msg("Could not connect to origin")
		return
	}
	defer origin.Close()

	if _, err := netio.WriteAll(origin, header); err != nil {
		log.Debug().Err(err).Msg("Could not send request to origin")
		return
	}

	// Relay origin bytes to the client, accumulating a copy for cache
	// admission as long as it still fits in one object. The lookup
	// buffer is reused as the accumulator.
	var total int64
	object := buf[:0]
	chunk := make([]byte, netio.MaxLine)
	for {
		n, err := origin.Read(chunk)
		if n > 0 {
			if _, werr := netio.WriteAll(conn, chunk[:n]); werr != nil {
				log.Debug().Err(werr).Msg("Could not write to client")
				return
			}
			total += int64(n)
			if len(object)+n <= cache.MaxObjectSize {
				object = append(object, chunk[:n]...)
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Debug().Err(err).Msg("Could not read from origin")
			return
		}
	}

	// Admit only complete responses; a response that outgrew the
	// accumulator must not be cached truncated.
	if total > 0 && total <= cache.MaxObjectSize {
		if p.store.Insert(key, object) == cache.Inserted {
			log.Debug().Int64("bytes", total).Msg("Cached response")
		}
	}
	log.Debug().Int64("bytes", total).Msg("Relayed response")
}

// dialOrigin resolves host and tries each candidate address in order,
// returning the first TCP connection that succeeds.
func (p *Proxy) dialOrigin(host, port string) (net.Conn, error) {
	addrs, err := net.LookupHost(host)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", host, err)
	}
	var lastErr error
	for _, addr := range addrs {
		conn, err := net.Dial("tcp", net.JoinHostPort(addr, port))
		if err != nil {
			lastErr = err
			continue
		}
		return conn, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no addresses")
	}
	return nil, fmt.Errorf("connect %s:%s: %w", host, port, lastErr)
}
