package metrics

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func freePort(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func TestServer_ServesRegisteredMetrics(t *testing.T) {
	reg := New()
	reg.OnionRequestsTotal.WithLabelValues("storage").Inc()
	reg.GroupSubtreesRunning.Set(2)

	addr := freePort(t)
	srv := NewServer(reg, addr, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Run(ctx)
	}()
	defer func() { cancel(); <-done }()

	var resp *http.Response
	var err error
	require.Eventually(t, func() bool {
		resp, err = http.Get(fmt.Sprintf("http://%s/metrics", addr))
		return err == nil
	}, time.Second, 5*time.Millisecond)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "swarmclient_onion_requests_total")
	require.Contains(t, string(body), "swarmclient_group_subtrees_running 2")
}
