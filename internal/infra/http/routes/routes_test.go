package routes

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gridapp "github.com/a11yscan/grid/internal/app/grid"
	"github.com/a11yscan/grid/internal/app/scheduler"
	infrahttp "github.com/a11yscan/grid/internal/infra/http"
	"github.com/a11yscan/grid/internal/infra/http/handler"
	"github.com/a11yscan/grid/pkg/domain/egress"
	"github.com/a11yscan/grid/pkg/domain/fingerprint"
	"github.com/a11yscan/grid/pkg/logger"
	"github.com/a11yscan/grid/pkg/validator"
)

func newTestServer(t *testing.T) (*httptest.Server, *gridapp.Service) {
	t.Helper()

	id, err := egress.NewIdentity("10.0.0.1", 8080, "us-east", egress.CarrierBroadband)
	require.NoError(t, err)
	pool, err := egress.NewPool([]egress.Identity{id})
	require.NoError(t, err)

	sched := scheduler.New(scheduler.Config{}, nil)
	service := gridapp.NewService(sched, pool, fingerprint.NewDefaultGenerator(), nil)
	_, err = service.InitializeGrid(2)
	require.NoError(t, err)

	v := validator.New()
	log := logger.NewNop()
	router := infrahttp.NewChiRouter()
	Register(router, &Handlers{
		Health: handler.NewHealthHandler(),
		Grid:   handler.NewGridHandler(service, v, log),
		Egress: handler.NewEgressHandler(pool, v, log),
	})

	srv := httptest.NewServer(router.Handler())
	t.Cleanup(srv.Close)
	return srv, service
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

func TestEnqueueClaimCompleteFlow(t *testing.T) {
	srv, _ := newTestServer(t)

	// Queue two domains at different priorities.
	resp := postJSON(t, srv.URL+"/api/v1/jobs", map[string]any{
		"domains":  []string{"low.example.com"},
		"priority": 20,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/api/v1/jobs", map[string]any{
		"domains":  []string{"high.example.com"},
		"priority": 80,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var enqueue struct {
		JobIDs []string `json:"jobIds"`
	}
	decodeBody(t, resp, &enqueue)
	require.Len(t, enqueue.JobIDs, 1)

	// Claim dispatches the higher priority first.
	resp = postJSON(t, srv.URL+"/api/v1/nodes/node-1/claim", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var assignment struct {
		Job struct {
			ID     string `json:"ID"`
			Domain string `json:"Domain"`
		} `json:"job"`
		Egress struct {
			Address string `json:"address"`
		} `json:"egress"`
		Fingerprint struct {
			UserAgent string `json:"user_agent"`
		} `json:"fingerprint"`
	}
	decodeBody(t, resp, &assignment)
	assert.Equal(t, "high.example.com", assignment.Job.Domain)
	assert.Equal(t, "10.0.0.1", assignment.Egress.Address)

	// Complete the claimed job.
	resp = postJSON(t, srv.URL+"/api/v1/jobs/"+assignment.Job.ID+"/complete", map[string]any{
		"result": map[string]any{"violations": 2},
	})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	// Grid status reflects the completion.
	getResp, err := http.Get(srv.URL + "/api/v1/grid/status")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, getResp.StatusCode)

	var status struct {
		TotalJobs     int `json:"totalJobs"`
		CompletedJobs int `json:"completedJobs"`
		PendingJobs   int `json:"pendingJobs"`
		PoolSize      int `json:"poolSize"`
	}
	decodeBody(t, getResp, &status)
	assert.Equal(t, 2, status.TotalJobs)
	assert.Equal(t, 1, status.CompletedJobs)
	assert.Equal(t, 1, status.PendingJobs)
	assert.Equal(t, 1, status.PoolSize)
}

func TestClaimEmptyBacklogReturnsNoContent(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/nodes/node-1/claim", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestClaimUnknownNodeReturnsNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/jobs", map[string]any{
		"domains": []string{"a.example.com"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/api/v1/nodes/ghost/claim", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEnqueueValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	// Empty domain list.
	resp := postJSON(t, srv.URL+"/api/v1/jobs", map[string]any{
		"domains": []string{},
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	// Priority out of range.
	resp2 := postJSON(t, srv.URL+"/api/v1/jobs", map[string]any{
		"domains":  []string{"a.example.com"},
		"priority": 300,
	})
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp2.StatusCode)

	// Not a domain.
	resp3 := postJSON(t, srv.URL+"/api/v1/jobs", map[string]any{
		"domains": []string{"not a domain"},
	})
	defer resp3.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp3.StatusCode)
}

func TestFailEndpointReportsRetry(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/jobs", map[string]any{
		"domains": []string{"flaky.example.com"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/api/v1/nodes/node-1/claim", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var assignment struct {
		Job struct {
			ID string `json:"ID"`
		} `json:"job"`
	}
	decodeBody(t, resp, &assignment)

	resp = postJSON(t, srv.URL+"/api/v1/jobs/"+assignment.Job.ID+"/fail", map[string]any{
		"error": "proxy timeout",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var fail struct {
		Retried bool `json:"retried"`
	}
	decodeBody(t, resp, &fail)
	assert.True(t, fail.Retried)
}

func TestEgressAdminEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/egress", map[string]any{
		"address": "10.1.0.1",
		"port":    3128,
		"region":  "eu-central",
		"carrier": "mobile",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	getResp, err := http.Get(srv.URL + "/api/v1/egress")
	require.NoError(t, err)

	var list struct {
		Size int `json:"size"`
	}
	decodeBody(t, getResp, &list)
	assert.Equal(t, 2, list.Size)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/egress/10.1.0.1", nil)
	require.NoError(t, err)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	delResp.Body.Close()
	assert.Equal(t, http.StatusNoContent, delResp.StatusCode)
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, path := range []string{"/health", "/ready", "/api/v1/health"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}
