package prometheus

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/derad-network/derad/runtime"
	"github.com/derad-network/derad/testing/assert"
	"github.com/derad-network/derad/testing/require"
	"github.com/pkg/errors"
	logTest "github.com/sirupsen/logrus/hooks/test"
)

type healthyService struct{}

func (*healthyService) Start()        {}
func (*healthyService) Stop() error   { return nil }
func (*healthyService) Status() error { return nil }

type degradedService struct{}

func (*degradedService) Start()      {}
func (*degradedService) Stop() error { return nil }
func (*degradedService) Status() error {
	return errors.New("wallet unreachable")
}

func serve(s *Service, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rr, req)
	return rr
}

func TestLifecycle(t *testing.T) {
	hook := logTest.NewGlobal()
	service := NewService("127.0.0.1:0", runtime.NewServiceRegistry())

	service.Start()
	require.LogsContain(t, hook, "Starting service")

	require.NoError(t, service.Stop())
	require.LogsContain(t, hook, "Stopping service")
	require.NoError(t, service.Status())
}

func TestHealthz_AllServicesHealthy(t *testing.T) {
	registry := runtime.NewServiceRegistry()
	require.NoError(t, registry.RegisterService(&healthyService{}))
	s := NewService("127.0.0.1:0", registry)

	rr := serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.StringContains(t, "*prometheus.healthyService: OK", rr.Body.String())
}

func TestHealthz_DegradedServiceReportsError(t *testing.T) {
	registry := runtime.NewServiceRegistry()
	require.NoError(t, registry.RegisterService(&healthyService{}))
	require.NoError(t, registry.RegisterService(&degradedService{}))
	s := NewService("127.0.0.1:0", registry)

	rr := serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.StringContains(t, "*prometheus.healthyService: OK", rr.Body.String())
	assert.StringContains(t, "*prometheus.degradedService: ERROR wallet unreachable", rr.Body.String())
}

func TestHealthz_NegotiatesJSON(t *testing.T) {
	registry := runtime.NewServiceRegistry()
	require.NoError(t, registry.RegisterService(&degradedService{}))
	s := NewService("127.0.0.1:0", registry)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Accept", contentTypeJSON)
	rr := serve(s, req)

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.Equal(t, contentTypeJSON, rr.Header().Get("Content-Type"))

	var resp struct {
		Err  string `json:"error"`
		Data []struct {
			Service string `json:"service"`
			Status  bool   `json:"status"`
			Err     string `json:"error"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	require.Equal(t, 1, len(resp.Data))
	assert.Equal(t, "*prometheus.degradedService", resp.Data[0].Service)
	assert.Equal(t, false, resp.Data[0].Status)
	assert.Equal(t, "wallet unreachable", resp.Data[0].Err)
}

func TestGoroutinez(t *testing.T) {
	s := NewService("127.0.0.1:0", runtime.NewServiceRegistry())

	rr := serve(s, httptest.NewRequest(http.MethodGet, "/goroutinez", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.StringContains(t, "goroutine", rr.Body.String())
}

func TestMetricsRoute(t *testing.T) {
	s := NewService("127.0.0.1:0", runtime.NewServiceRegistry())

	rr := serve(s, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.StringContains(t, "# HELP", rr.Body.String())
}

func TestAdditionalHandlersMounted(t *testing.T) {
	called := false
	s := NewService("127.0.0.1:0", runtime.NewServiceRegistry(), Handler{
		Path: "/db/backup",
		Handler: func(w http.ResponseWriter, _ *http.Request) {
			called = true
			w.WriteHeader(http.StatusOK)
		},
	})

	rr := serve(s, httptest.NewRequest(http.MethodGet, "/db/backup", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, true, called, "custom route should reach the supplied handler")
}
