package cli

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, addr string) string {
	t.Helper()
	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetricsServerExposesTransactionCounters(t *testing.T) {
	s, err := startMetricsServer("127.0.0.1:0", slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	defer func() { _ = s.Shutdown(context.Background()) }()

	_, err = deployRun{artifacts: writeArtifacts(t)}.run(t)
	require.NoError(t, err)

	body := scrape(t, s.Addr())
	assert.Contains(t, body, `ignite_transactions_sent_total{kind="create"}`)
	assert.Contains(t, body, `ignite_transactions_confirmed_total{outcome="success"}`)
	assert.Contains(t, body, "ignite_transactions_fee_bumps_total")
	assert.Contains(t, body, "ignite_transactions_confirmation_seconds_bucket")
}

func TestMetricsServerShutdown(t *testing.T) {
	s, err := startMetricsServer("127.0.0.1:0", slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	addr := s.Addr()
	scrape(t, addr)

	require.NoError(t, s.Shutdown(context.Background()))
	_, err = http.Get("http://" + addr + "/metrics")
	assert.Error(t, err)
}

func TestDeployCommandMetricsAddrInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	_, err = deployRun{artifacts: writeArtifacts(t), metricsAddr: ln.Addr().String()}.run(t)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "metrics server")
}
