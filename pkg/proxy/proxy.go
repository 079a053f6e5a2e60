package proxy

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ainblockchain/papers-with-claudecode-sub002/pkg/ratelimit"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

const (
	ErrorTypeForbidden   = "forbidden"
	ErrorTypeRateLimited = "rate_limit_error"
	ErrorTypeProxy       = "proxy_error"

	streamBufferSize = 32 * 1024
)

// Hop-by-hop headers are meaningful for a single connection only
var hopByHopHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Proxy-Connection":    true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func writeError(c echo.Context, status int, errType, message string) error {
	return c.JSON(status, errorBody{Error: errorDetail{Type: errType, Message: message}})
}

// Proxy gates requests through the path filter, the rate limiter and the
// credential injector, in that order, then streams the upstream response back
type Proxy struct {
	upstream *url.URL
	filter   *PathFilter
	limiter  *ratelimit.SlidingWindow
	injector *CredentialInjector
	client   *http.Client
	now      func() time.Time
}

func NewProxy(upstream *url.URL, filter *PathFilter, limiter *ratelimit.SlidingWindow, injector *CredentialInjector) *Proxy {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConns = 100
	transport.MaxIdleConnsPerHost = 100
	transport.IdleConnTimeout = 90 * time.Second

	return &Proxy{
		upstream: upstream,
		filter:   filter,
		limiter:  limiter,
		injector: injector,
		client: &http.Client{
			// No overall timeout; event streams stay open for the length of a generation
			Transport: transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		now: time.Now,
	}
}

// Handle is mounted on every non-health path
func (p *Proxy) Handle(c echo.Context) error {
	req := c.Request()
	path := req.URL.Path

	if !p.filter.Allowed(path) {
		log.Warn().Str("path", path).Str("client", c.RealIP()).Msg("proxy path rejected")
		return writeError(c, http.StatusForbidden, ErrorTypeForbidden, fmt.Sprintf("path %s is not allowed", path))
	}

	clientKey := c.RealIP()
	decision := p.limiter.Check(clientKey, p.now())
	if !decision.Allowed {
		retryAfter := retryAfterSeconds(decision.RetryAfter)
		log.Warn().Str("client", clientKey).Int("retry_after", retryAfter).Msg("proxy rate limited")
		c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter))
		return writeError(c, http.StatusTooManyRequests, ErrorTypeRateLimited,
			fmt.Sprintf("rate limit of %d requests per %s exceeded", p.limiter.MaxRequests(), p.limiter.Window()))
	}

	outReq, err := p.upstreamRequest(req, clientKey)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("failed to build upstream request")
		return writeError(c, http.StatusBadGateway, ErrorTypeProxy, "failed to build upstream request")
	}

	resp, err := p.client.Do(outReq)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("upstream request failed")
		return writeError(c, http.StatusBadGateway, ErrorTypeProxy, "upstream request failed")
	}
	defer resp.Body.Close()

	res := c.Response()
	copyHeaders(res.Header(), resp.Header)
	res.WriteHeader(resp.StatusCode)

	// Headers are on the wire from here on; failures can only be logged
	if err := pipe(res, resp.Body); err != nil {
		log.Warn().Err(err).Str("path", path).Int("status", resp.StatusCode).Msg("upstream stream interrupted")
	}
	return nil
}

func (p *Proxy) upstreamRequest(req *http.Request, clientIP string) (*http.Request, error) {
	target := *p.upstream
	target.Path = singleJoiningSlash(p.upstream.Path, req.URL.Path)
	if req.URL.RawPath != "" {
		target.RawPath = singleJoiningSlash(p.upstream.EscapedPath(), req.URL.RawPath)
	} else {
		target.RawPath = ""
	}
	target.RawQuery = req.URL.RawQuery

	outReq, err := http.NewRequestWithContext(req.Context(), req.Method, target.String(), req.Body)
	if err != nil {
		return nil, err
	}
	outReq.ContentLength = req.ContentLength

	copyHeaders(outReq.Header, req.Header)
	outReq.Header.Del("Host")
	p.injector.Apply(outReq.Header)

	if clientIP != "" {
		if prior := req.Header.Get("X-Forwarded-For"); prior != "" {
			clientIP = prior + ", " + clientIP
		}
		outReq.Header.Set("X-Forwarded-For", clientIP)
	}

	return outReq, nil
}

// copyHeaders copies end-to-end headers, dropping hop-by-hop ones and any
// named in the Connection header
func copyHeaders(dst, src http.Header) {
	connectionScoped := map[string]bool{}
	for _, v := range src.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			connectionScoped[http.CanonicalHeaderKey(strings.TrimSpace(name))] = true
		}
	}

	for name, values := range src {
		if hopByHopHeaders[name] || connectionScoped[name] {
			continue
		}
		for _, v := range values {
			dst.Add(name, v)
		}
	}
}

// pipe relays body to w chunk by chunk, flushing after each write so event
// streams reach the client as they are produced
func pipe(w *echo.Response, body io.Reader) error {
	buf := make([]byte, streamBufferSize)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return fmt.Errorf("write to client: %w", err)
			}
			w.Flush()
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return nil
			}
			return fmt.Errorf("read from upstream: %w", readErr)
		}
	}
}

func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

func singleJoiningSlash(a, b string) string {
	aslash := strings.HasSuffix(a, "/")
	bslash := strings.HasPrefix(b, "/")
	switch {
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash:
		return a + "/" + b
	}
	return a + b
}
