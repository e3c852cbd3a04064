package transport

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"

	"github.com/JakeHuneau/wazuh-agent/internal/adapters/observability"
	"github.com/JakeHuneau/wazuh-agent/internal/domain"
)

// staticTokenSource implements ports.TokenSource with a fixed value.
type staticTokenSource string

func (s staticTokenSource) Snapshot() string { return string(s) }

// serveOnce accepts a single connection on ln, reads the request line
// and headers, and writes back a canned HTTP/1.1 response.
func serveOnce(t *testing.T, ln net.Listener, status string, respBody string) <-chan string {
	t.Helper()
	requestLineCh := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			requestLineCh <- ""
			return
		}
		defer conn.Close()

		r := bufio.NewReader(conn)
		req, err := http.ReadRequest(r)
		if err != nil {
			requestLineCh <- ""
			return
		}
		requestLineCh <- req.Method + " " + req.URL.Path
		req.Body.Close()

		w := bufio.NewWriter(conn)
		w.WriteString("HTTP/1.1 " + status + "\r\n")
		w.WriteString("Content-Length: ")
		w.WriteString(lenStr(respBody))
		w.WriteString("\r\n\r\n")
		w.WriteString(respBody)
		w.Flush()
	}()
	return requestLineCh
}

func lenStr(s string) string {
	n := len(s)
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func listenerHostPort(t *testing.T, ln net.Listener) (string, string) {
	t.Helper()
	addr := ln.Addr().(*net.TCPAddr)
	return "127.0.0.1", itoa(addr.Port)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func TestHttpTransportRequestSuccess(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	reqCh := serveOnce(t, ln, "200 OK", `{"ok":true}`)
	host, port := listenerHostPort(t, ln)

	tr := New()
	resp := tr.Request(context.Background(), domain.HTTPRequestParams{
		Method: "GET",
		Host:   host,
		Port:   port,
		Path:   "/commands",
	})

	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d body=%s", resp.StatusCode, resp.Body)
	}
	if !strings.Contains(string(resp.Body), "ok") {
		t.Fatalf("unexpected body: %s", resp.Body)
	}
	if got := <-reqCh; got != "GET /commands" {
		t.Fatalf("unexpected request line: %q", got)
	}
}

func TestHttpTransportRequestConnectFailureIsSynthetic500(t *testing.T) {
	tr := New()
	tr.DialTimeout = 200 * time.Millisecond
	resp := tr.Request(context.Background(), domain.HTTPRequestParams{
		Method: "GET",
		Host:   "127.0.0.1",
		Port:   "1", // nothing listens here
		Path:   "/commands",
	})
	if resp.StatusCode != 500 {
		t.Fatalf("expected synthetic 500, got %d", resp.StatusCode)
	}
	if len(resp.Body) == 0 {
		t.Fatalf("expected error text in body")
	}
}

func TestHttpTransportCoRequestDispatchesOnSuccessAndStops(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	serveOnce(t, ln, "200 OK", `{"commands":[]}`)
	host, port := listenerHostPort(t, ln)

	tr := New()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var gotBody []byte
	iterations := 0
	tr.CoRequest(
		ctx,
		staticTokenSource("tok"),
		domain.HTTPRequestParams{Method: "GET", Host: host, Port: port, Path: "/commands"},
		nil,
		func() {},
		func(body []byte) { gotBody = body },
		func() bool {
			iterations++
			return iterations <= 1
		},
		20*time.Millisecond,
		20*time.Millisecond,
	)

	if !strings.Contains(string(gotBody), "commands") {
		t.Fatalf("expected onSuccess body, got %q", gotBody)
	}
}

func TestHttpTransportCoRequestCallsOnUnauthorized(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	serveOnce(t, ln, "401 Unauthorized", `{"error":"expired"}`)
	host, port := listenerHostPort(t, ln)

	tr := New()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	calledUnauthorized := false
	iterations := 0
	tr.CoRequest(
		ctx,
		staticTokenSource("tok"),
		domain.HTTPRequestParams{Method: "POST", Host: host, Port: port, Path: "/stateful"},
		nil,
		func() { calledUnauthorized = true },
		func([]byte) {},
		func() bool {
			iterations++
			return iterations <= 1
		},
		20*time.Millisecond,
		20*time.Millisecond,
	)

	if !calledUnauthorized {
		t.Fatalf("expected onUnauthorized to be called")
	}
}

func TestHttpTransportCoRequestIncrementsSuccessCounter(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	serveOnce(t, ln, "200 OK", `{"commands":[]}`)
	host, port := listenerHostPort(t, ln)

	reg := prometheus.NewRegistry()
	obs := observability.New(logrus.New(), reg)

	tr := New()
	tr.Obs = obs
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	iterations := 0
	tr.CoRequest(
		ctx,
		staticTokenSource("tok"),
		domain.HTTPRequestParams{Method: "GET", Host: host, Port: port, Path: "/commands"},
		nil,
		func() {},
		func([]byte) {},
		func() bool {
			iterations++
			return iterations <= 1
		},
		20*time.Millisecond,
		20*time.Millisecond,
	)

	count, err := testutil.GatherAndCount(reg, observability.MetricRequestLoopSuccess)
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 sample recorded for %s, got %d", observability.MetricRequestLoopSuccess, count)
	}
}

func TestHttpTransportCoRequestLogsAndCountsConnectFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs := observability.New(logrus.New(), reg)

	tr := New()
	tr.Obs = obs
	tr.DialTimeout = 50 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	iterations := 0
	tr.CoRequest(
		ctx,
		staticTokenSource("tok"),
		domain.HTTPRequestParams{Method: "GET", Host: "127.0.0.1", Port: "1", Path: "/commands"},
		nil,
		func() {},
		func([]byte) {},
		func() bool {
			iterations++
			return iterations <= 1
		},
		20*time.Millisecond,
		20*time.Millisecond,
	)

	count, err := testutil.GatherAndCount(reg, observability.MetricRequestLoopFailure)
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 sample recorded for %s, got %d", observability.MetricRequestLoopFailure, count)
	}
}
