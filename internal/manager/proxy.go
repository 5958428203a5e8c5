package manager

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// NewReverseProxy builds the HTTP/SSE proxy leg of SPEC_FULL.md §4.9:
// rebuild a fresh request against targetBase + the actor-relative path
// rather than forwarding the incoming request verbatim, and hand it to
// net/http/httputil.ReverseProxy — a one-line stdlib fit for "rebuild a
// request and forward it" (no third-party HTTP proxy library is grounded
// anywhere in the retrieved corpus, see DESIGN.md).
func NewReverseProxy(targetBase string, log *zap.Logger) (*httputil.ReverseProxy, error) {
	target, err := url.Parse(targetBase)
	if err != nil {
		return nil, fmt.Errorf("manager: parse proxy target %q: %w", targetBase, err)
	}

	proxy := &httputil.ReverseProxy{
		Director: func(req *http.Request) {
			req.URL.Scheme = target.Scheme
			req.URL.Host = target.Host
			req.Host = target.Host
			req.URL.Path = singleJoiningSlash(target.Path, req.URL.Path)
		},
	}
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Warn("actor proxy request failed", zap.String("target", targetBase), zap.Error(err))
		w.WriteHeader(http.StatusBadGateway)
	}
	return proxy, nil
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

// dialTimeout bounds establishing the upstream leg of a WebSocket proxy.
const dialTimeout = 10 * time.Second

// ProxyWebSocket dials targetURL as a second WebSocket client connection
// and shuttles data messages between it and client until either side
// closes or fails (SPEC_FULL.md §4.9). Close frames are not forwarded:
// once either leg ends, the client connection receives close code 1000
// (the Cloudflare workaround), whatever code the upstream closed with.
func ProxyWebSocket(client *websocket.Conn, targetURL string, header http.Header) error {
	dialer := &websocket.Dialer{HandshakeTimeout: dialTimeout}
	upstream, resp, err := dialer.Dial(targetURL, header)
	if err != nil {
		status := http.StatusBadGateway
		if resp != nil {
			status = resp.StatusCode
		}
		return fmt.Errorf("manager: dial upstream websocket (status %d): %w", status, err)
	}
	defer upstream.Close()

	errc := make(chan error, 2)
	go shuttle(client, upstream, errc)
	go shuttle(upstream, client, errc)

	err = <-errc
	_ = client.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return err
}

// shuttle copies messages from src to dst until src closes or a write to
// dst fails, reporting the terminal error on errc exactly once.
func shuttle(src, dst *websocket.Conn, errc chan<- error) {
	for {
		msgType, data, err := src.ReadMessage()
		if err != nil {
			errc <- err
			return
		}
		if err := dst.WriteMessage(msgType, data); err != nil {
			errc <- err
			return
		}
	}
}
