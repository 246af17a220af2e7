package observability

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// freePort reserves an ephemeral port for the server under test.
func freePort(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return fmt.Sprintf("%d", port)
}

func TestMetricsServerServesProbes(t *testing.T) {
	port := freePort(t)
	server := StartMetricsServer(port, nil, zap.NewNop())
	defer ShutdownMetricsServer(server)

	base := "http://127.0.0.1:" + port

	// The listener is bound asynchronously; poll until it answers
	var resp *http.Response
	require.Eventually(t, func() bool {
		r, err := http.Get(base + "/ready")
		if err != nil {
			return false
		}
		resp = r
		return true
	}, 2*time.Second, 20*time.Millisecond)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ready", string(body))

	metrics, err := http.Get(base + "/metrics")
	require.NoError(t, err)
	metrics.Body.Close()
	assert.Equal(t, http.StatusOK, metrics.StatusCode)
}

func TestShutdownMetricsServer(t *testing.T) {
	server := StartMetricsServer(freePort(t), nil, zap.NewNop())
	assert.NoError(t, ShutdownMetricsServer(server))
}
