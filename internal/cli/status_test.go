package cli

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seastrand/vigil/internal/fault"
)

func statusServer(t *testing.T, snap fault.StatusSnapshot) string {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(snap)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return strings.TrimPrefix(srv.URL, "http://")
}

func TestStatusCommand_PrintsSnapshot(t *testing.T) {
	addr := statusServer(t, fault.StatusSnapshot{
		State:              fault.StateDegraded,
		Tick:               120,
		LastTransitionTick: 97,
		Episode:            "0190f7a2-demo",
	})

	out, err := executeCommand(t, "status", "--addr", addr)
	require.NoError(t, err)

	assert.Contains(t, out, "state:           Degraded")
	assert.Contains(t, out, "tick:            120")
	assert.Contains(t, out, "last transition: tick 97")
	assert.Contains(t, out, "episode:         0190f7a2-demo")
}

func TestStatusCommand_JSONOutput(t *testing.T) {
	addr := statusServer(t, fault.StatusSnapshot{State: fault.StateNormal, Tick: 7})

	out, err := executeCommand(t, "--format", "json", "status", "--addr", addr)
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Normal", data["state"])
}

func TestStatusCommand_Unreachable(t *testing.T) {
	_, err := executeCommand(t, "status", "--addr", "127.0.0.1:1", "--timeout", "200ms")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestStatusCommand_NonOKResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "teapot", http.StatusTeapot)
	}))
	t.Cleanup(srv.Close)

	_, err := executeCommand(t, "status", "--addr", strings.TrimPrefix(srv.URL, "http://"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}
