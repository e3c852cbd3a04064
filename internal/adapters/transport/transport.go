// Package transport implements ports.Transport directly on net.Resolver,
// net.Dialer/tls.DialWithDialer, and bufio.Writer/bufio.Reader rather than
// net/http.Client: resolve, connect, write, and read must be
// independently observable so CoRequest can apply a different error
// policy to each step.
package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/JakeHuneau/wazuh-agent/internal/adapters/observability"
	"github.com/JakeHuneau/wazuh-agent/internal/domain"
	"github.com/JakeHuneau/wazuh-agent/internal/ports"
)

// HttpTransport is a stateless helper owning a resolver and a dial
// timeout; it holds no per-request state so a single instance is
// shared by every RequestLoop.
type HttpTransport struct {
	Resolver     *net.Resolver
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Obs receives a log line on every CoRequest failure branch
	// (connect/write/read/non-200) and the request-loop outcome
	// counters. Nil is fine: New() leaves it unset and every call site
	// below checks before using it.
	Obs ports.Observability
}

// New returns an HttpTransport with the system resolver and
// conservative per-step timeouts.
func New() *HttpTransport {
	return &HttpTransport{
		Resolver:     net.DefaultResolver,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

var _ ports.Transport = (*HttpTransport)(nil)

func errorResponse(err error) ports.Response {
	return ports.Response{StatusCode: 500, Body: []byte(err.Error())}
}

func (t *HttpTransport) logError(msg string, err error, fields ...ports.Field) {
	if t.Obs != nil {
		t.Obs.LogError(msg, err, fields...)
	}
}

func (t *HttpTransport) logDebug(msg string, fields ...ports.Field) {
	if t.Obs != nil {
		t.Obs.LogDebug(msg, fields...)
	}
}

func (t *HttpTransport) incCounter(name string, v float64) {
	if t.Obs != nil {
		t.Obs.IncCounter(name, v)
	}
}

// Request performs resolve -> connect -> write -> read synchronously.
// Any failure at any step is reported as a synthetic 500 rather than a
// Go error, giving callers one code path to branch on.
func (t *HttpTransport) Request(ctx context.Context, params domain.HTTPRequestParams) ports.Response {
	conn, err := t.connect(ctx, params)
	if err != nil {
		return errorResponse(err)
	}
	defer conn.Close()

	if err := t.write(conn, params); err != nil {
		return errorResponse(err)
	}

	resp, body, err := t.read(conn)
	if err != nil {
		return errorResponse(err)
	}
	return ports.Response{StatusCode: resp.StatusCode, Body: body}
}

// RequestDownload is like Request but streams the response body
// straight to dstPath instead of buffering it in memory.
func (t *HttpTransport) RequestDownload(ctx context.Context, params domain.HTTPRequestParams, dstPath string) ports.Response {
	conn, err := t.connect(ctx, params)
	if err != nil {
		return errorResponse(err)
	}
	defer conn.Close()

	if err := t.write(conn, params); err != nil {
		return errorResponse(err)
	}

	resp, reader, err := t.readHeaders(conn)
	if err != nil {
		return errorResponse(err)
	}

	f, err := os.Create(dstPath)
	if err != nil {
		return errorResponse(err)
	}
	defer f.Close()

	if _, err := io.Copy(f, reader); err != nil {
		return errorResponse(err)
	}
	return ports.Response{StatusCode: resp.StatusCode, Body: nil}
}

func (t *HttpTransport) connect(ctx context.Context, params domain.HTTPRequestParams) (net.Conn, error) {
	dctx, cancel := context.WithTimeout(ctx, t.DialTimeout)
	defer cancel()

	addrs, err := t.Resolver.LookupHost(dctx, params.Host)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve %s: %w", params.Host, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("transport: resolve %s: no addresses", params.Host)
	}

	dialer := &net.Dialer{Timeout: t.DialTimeout}
	addr := net.JoinHostPort(addrs[0], params.Port)

	if params.UseTLS {
		conn, err := tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: params.Host})
		if err != nil {
			return nil, fmt.Errorf("transport: connect %s: %w", addr, err)
		}
		return conn, nil
	}

	conn, err := dialer.DialContext(dctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: connect %s: %w", addr, err)
	}
	return conn, nil
}

func (t *HttpTransport) write(conn net.Conn, params domain.HTTPRequestParams) error {
	if t.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(t.WriteTimeout))
	}

	w := bufio.NewWriter(conn)
	path := params.Path
	if path == "" {
		path = "/"
	}
	fmt.Fprintf(w, "%s %s HTTP/1.1\r\n", params.Method, path)
	fmt.Fprintf(w, "Host: %s\r\n", params.Host)
	fmt.Fprintf(w, "Accept: application/json\r\n")
	if params.UserAgent != "" {
		fmt.Fprintf(w, "User-Agent: %s\r\n", params.UserAgent)
	}

	switch {
	case params.Token != "":
		fmt.Fprintf(w, "Authorization: Bearer %s\r\n", params.Token)
	case params.BasicAuth != "":
		fmt.Fprintf(w, "Authorization: Basic %s\r\n", params.BasicAuth)
	}

	if len(params.Body) > 0 {
		fmt.Fprintf(w, "Content-Type: application/json\r\n")
		fmt.Fprintf(w, "Transfer-Encoding: chunked\r\n")
		fmt.Fprintf(w, "Connection: close\r\n\r\n")
		fmt.Fprintf(w, "%x\r\n", len(params.Body))
		w.Write(params.Body)
		fmt.Fprintf(w, "\r\n0\r\n\r\n")
	} else {
		fmt.Fprintf(w, "Connection: close\r\n\r\n")
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("transport: write: %w", err)
	}
	return nil
}

func (t *HttpTransport) readHeaders(conn net.Conn) (*http.Response, io.Reader, error) {
	if t.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(t.ReadTimeout))
	}
	r := bufio.NewReader(conn)
	resp, err := http.ReadResponse(r, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("transport: read: %w", err)
	}
	return resp, resp.Body, nil
}

func (t *HttpTransport) read(conn net.Conn) (*http.Response, []byte, error) {
	resp, body, err := t.readHeaders(conn)
	if err != nil {
		return nil, nil, err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, nil, fmt.Errorf("transport: read body: %w", err)
	}
	if rc, ok := body.(io.Closer); ok {
		rc.Close()
	}
	return resp, data, nil
}

// CoRequest is the cooperative, re-entrant loop kernel shared by every
// RequestLoop instance. It never returns on its own; it runs until
// loopWhile returns false or ctx is cancelled. connectionRetry and
// batchInterval come from the caller's configuration (agent.go threads
// cfg.ConnectionRetry()/cfg.BatchInterval() through requestloop's
// RunCommandPoll/RunPush) rather than being fixed here.
func (t *HttpTransport) CoRequest(
	ctx context.Context,
	token ports.TokenSource,
	params domain.HTTPRequestParams,
	bodyProducer ports.BodyProducerFunc,
	onUnauthorized func(),
	onSuccess func(body []byte),
	loopWhile func() bool,
	connectionRetry time.Duration,
	batchInterval time.Duration,
) {
	const timerSleep = 50 * time.Millisecond

	for loopWhile == nil || loopWhile() {
		if ctx.Err() != nil {
			return
		}

		conn, err := t.connect(ctx, params)
		if err != nil {
			t.logError("transport: connect failed", err, ports.Field{Key: "host", Value: params.Host}, ports.Field{Key: "path", Value: params.Path})
			t.incCounter(observability.MetricRequestLoopFailure, 1)
			sleep(ctx, connectionRetry)
			continue
		}

		body := params.Body
		if bodyProducer != nil {
			b, err := bodyProducer(ctx)
			if err != nil {
				conn.Close()
				if err == context.Canceled || ctx.Err() != nil {
					return
				}
				t.logError("transport: body producer failed", err, ports.Field{Key: "path", Value: params.Path})
				t.incCounter(observability.MetricRequestLoopFailure, 1)
				sleep(ctx, connectionRetry)
				continue
			}
			body = b
		}

		reqParams := params
		reqParams.Body = body
		if token != nil {
			reqParams.Token = token.Snapshot()
		}

		if err := t.write(conn, reqParams); err != nil {
			conn.Close()
			t.logError("transport: write failed", err, ports.Field{Key: "path", Value: params.Path})
			t.incCounter(observability.MetricRequestLoopFailure, 1)
			continue // no backoff on write failure, by design
		}

		resp, respBody, err := t.read(conn)
		conn.Close()
		if err != nil {
			t.logError("transport: read failed", err, ports.Field{Key: "path", Value: params.Path})
			t.incCounter(observability.MetricRequestLoopFailure, 1)
			continue
		}

		switch resp.StatusCode {
		case 200:
			t.incCounter(observability.MetricRequestLoopSuccess, 1)
			if onSuccess != nil {
				onSuccess(respBody)
			}
		case 401, 403:
			t.logError("transport: unauthorized", errUnauthorizedStatus, ports.Field{Key: "path", Value: params.Path}, ports.Field{Key: "status", Value: resp.StatusCode})
			t.incCounter(observability.MetricRequestLoopFailure, 1)
			if onUnauthorized != nil {
				onUnauthorized()
			}
			sleep(ctx, connectionRetry)
		default:
			t.logDebug("transport: non-200 response", ports.Field{Key: "path", Value: params.Path}, ports.Field{Key: "status", Value: resp.StatusCode})
			t.incCounter(observability.MetricRequestLoopFailure, 1)
			sleep(ctx, batchInterval)
		}

		sleep(ctx, timerSleep)
	}
}

type unauthorizedStatusError struct{}

func (unauthorizedStatusError) Error() string { return "transport: request unauthorized (401/403)" }

var errUnauthorizedStatus = unauthorizedStatusError{}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// authResponse mirrors the manager's {"token": "..."} authentication
// reply shape.
type authResponse struct {
	Token string `json:"token"`
}

// userPasswordAuthResponse mirrors the manager's
// {"data": {"token": "..."}} security API reply shape.
type userPasswordAuthResponse struct {
	Data struct {
		Token string `json:"token"`
	} `json:"data"`
}

// AuthenticateWithUUIDAndKey POSTs {"uuid":..., "key":...} to
// /api/v1/authentication and returns the bearer token on 200.
func (t *HttpTransport) AuthenticateWithUUIDAndKey(ctx context.Context, host, userAgent, uuid, key string) (string, bool) {
	body, err := json.Marshal(map[string]string{"uuid": uuid, "key": key})
	if err != nil {
		return "", false
	}
	resp := t.Request(ctx, domain.HTTPRequestParams{
		Method:    "POST",
		Host:      host,
		Port:      "443",
		Path:      "/api/v1/authentication",
		UserAgent: userAgent,
		Body:      body,
		UseTLS:    true,
	})
	if resp.StatusCode != 200 {
		return "", false
	}
	var parsed authResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil || parsed.Token == "" {
		return "", false
	}
	return parsed.Token, true
}

// AuthenticateWithUserPassword base64-encodes "user:pw" as HTTP Basic
// auth, POSTs to /security/user/authenticate, and returns the token
// from the nested "data.token" field on 200.
func (t *HttpTransport) AuthenticateWithUserPassword(ctx context.Context, host, userAgent, user, pw string) (string, bool) {
	basic := base64.StdEncoding.EncodeToString([]byte(user + ":" + pw))
	resp := t.Request(ctx, domain.HTTPRequestParams{
		Method:    "POST",
		Host:      host,
		Port:      "443",
		Path:      "/security/user/authenticate",
		UserAgent: userAgent,
		BasicAuth: basic,
		UseTLS:    true,
	})
	if resp.StatusCode != 200 {
		return "", false
	}
	var parsed userPasswordAuthResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil || parsed.Data.Token == "" {
		return "", false
	}
	return parsed.Data.Token, true
}
