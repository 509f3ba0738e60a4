package yivi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agegate/internal/age/models"
	dErrors "agegate/pkg/domain-errors"
	"agegate/pkg/platform/circuit"
)

func TestStart_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/session", r.URL.Path)
		assert.Equal(t, "secret-token", r.Header.Get("Authorization"))

		var req models.DisclosureRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, models.DisclosureContext, req.Context)
		require.Len(t, req.Disclose, 1)

		json.NewEncoder(w).Encode(map[string]any{
			"token": "tkn-abc",
			"sessionPtr": map[string]string{
				"u":      "https://u/irma/tkn-abc",
				"irmaqr": "disclosing",
			},
		})
	}))
	defer srv.Close()

	client := New(srv.URL, "secret-token")
	pkg, err := client.Start(context.Background(), models.NewDisclosureRequest("pbdf.gemeente.personalData.over18"))
	require.NoError(t, err)
	assert.Equal(t, "tkn-abc", pkg.Token)
	assert.Equal(t, "https://u/irma/tkn-abc", pkg.SessionPtr.U)
	assert.Equal(t, "disclosing", pkg.SessionPtr.IrmaQR)
}

func TestStart_MissingFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"token": ""}`))
	}))
	defer srv.Close()

	client := New(srv.URL, "secret-token")
	_, err := client.Start(context.Background(), models.NewDisclosureRequest("attr"))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeMalformedUpstream))
}

func TestStart_MalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	client := New(srv.URL, "secret-token")
	_, err := client.Start(context.Background(), models.NewDisclosureRequest("attr"))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeMalformedUpstream))
}

func TestStart_Upstream4xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	client := New(srv.URL, "secret-token")
	_, err := client.Start(context.Background(), models.NewDisclosureRequest("attr"))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUpstreamRejected))
}

func TestStart_Upstream5xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := New(srv.URL, "secret-token")
	_, err := client.Start(context.Background(), models.NewDisclosureRequest("attr"))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUpstreamUnavailable))
}

func TestStart_ConnectionRefused(t *testing.T) {
	client := New("http://127.0.0.1:1", "secret-token")
	_, err := client.Start(context.Background(), models.NewDisclosureRequest("attr"))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUpstreamUnavailable))
}

func TestStart_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := New(srv.URL, "secret-token", WithTimeouts(20*time.Millisecond, 20*time.Millisecond))
	_, err := client.Start(context.Background(), models.NewDisclosureRequest("attr"))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUpstreamUnavailable))
}

func TestResult_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/session/tkn-abc/result", r.URL.Path)

		json.NewEncoder(w).Encode(map[string]any{
			"token":       "tkn-abc",
			"status":      "DONE",
			"proofStatus": "VALID",
			"disclosed": [][]map[string]string{{
				{"id": "pbdf.gemeente.personalData.over18", "rawvalue": "yes"},
			}},
		})
	}))
	defer srv.Close()

	client := New(srv.URL, "secret-token")
	result, err := client.Result(context.Background(), "tkn-abc")
	require.NoError(t, err)
	assert.Equal(t, models.StatusDone, result.Status)
	assert.Equal(t, models.ProofStatusValid, result.ProofStatus)

	value, ok := result.Attribute("pbdf.gemeente.personalData.over18")
	assert.True(t, ok)
	assert.Equal(t, "yes", value)
}

func TestResult_SessionUnknown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := New(srv.URL, "secret-token")
	_, err := client.Result(context.Background(), "tkn-gone")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeSessionExpired))
}

func TestResult_MissingStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"token": "tkn-abc"}`))
	}))
	defer srv.Close()

	client := New(srv.URL, "secret-token")
	_, err := client.Result(context.Background(), "tkn-abc")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeMalformedUpstream))
}

func TestClient_BreakerFailsFast(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := New(srv.URL, "secret-token",
		WithBreaker(circuit.New(circuit.WithFailureThreshold(2), circuit.WithProbeInterval(100))),
	)

	for i := 0; i < 2; i++ {
		_, err := client.Result(context.Background(), "tkn-abc")
		require.Error(t, err)
	}
	require.Equal(t, 2, hits)

	// Circuit is open now; the next call must not reach the server.
	_, err := client.Result(context.Background(), "tkn-abc")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUpstreamUnavailable))
	assert.Equal(t, 2, hits)
}

func TestClient_BreakerRecovers(t *testing.T) {
	var fail = true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"status": "INITIALIZED"}`))
	}))
	defer srv.Close()

	client := New(srv.URL, "secret-token",
		WithBreaker(circuit.New(
			circuit.WithFailureThreshold(1),
			circuit.WithSuccessThreshold(1),
			circuit.WithProbeInterval(1),
		)),
	)

	_, err := client.Result(context.Background(), "tkn-abc")
	require.Error(t, err)

	// Server recovers; the probe closes the circuit again.
	fail = false
	result, err := client.Result(context.Background(), "tkn-abc")
	require.NoError(t, err)
	assert.Equal(t, models.StatusInitialized, result.Status)
}
