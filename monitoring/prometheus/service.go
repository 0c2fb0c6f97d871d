// Package prometheus exposes the monitoring surface of the node. /metrics
// serves everything registered with the prometheus DefaultRegisterer,
// /healthz reports the status of every registered service and /goroutinez
// dumps goroutine stacks for debugging.
package prometheus

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"runtime/pprof"
	"time"

	"github.com/derad-network/derad/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "prometheus")

// Service serves the monitoring routes for a given address host:port.
type Service struct {
	server      *http.Server
	svcRegistry *runtime.ServiceRegistry
	failStatus  error
}

// Handler is a path and handler pair mounted on the monitoring server next
// to the built in routes.
type Handler struct {
	Path    string
	Handler http.HandlerFunc
}

// NewService sets up a new instance for a given address host:port.
// An empty host will match with any IP so an address like ":2112" is perfectly acceptable.
func NewService(addr string, svcRegistry *runtime.ServiceRegistry, additionalHandlers ...Handler) *Service {
	s := &Service{svcRegistry: svcRegistry}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.healthzHandler)
	mux.HandleFunc("/goroutinez", s.goroutinezHandler)

	for _, h := range additionalHandlers {
		mux.HandleFunc(h.Path, h.Handler)
	}

	s.server = &http.Server{Addr: addr, Handler: mux}

	return s
}

func (s *Service) healthzHandler(w http.ResponseWriter, r *http.Request) {
	type serviceStatus struct {
		Name   string `json:"service"`
		Status bool   `json:"status"`
		Err    string `json:"error"`
	}
	statuses := make([]serviceStatus, 0)
	hasError := false
	for k, v := range s.svcRegistry.Statuses() {
		status := serviceStatus{Name: k.String(), Status: true}
		if v != nil {
			status.Status = false
			status.Err = v.Error()
			hasError = true
		}
		statuses = append(statuses, status)
	}

	response := apiResponse{Data: statuses}
	if negotiateContentType(r) == contentTypePlainText {
		var buf bytes.Buffer
		for _, st := range statuses {
			status := "OK"
			if !st.Status {
				status = "ERROR " + st.Err
			}
			if _, err := buf.WriteString(fmt.Sprintf("%s: %s\n", st.Name, status)); err != nil {
				hasError = true
			}
		}
		response.Data = buf
	} else {
		w.Header().Set("Content-Type", contentTypeJSON)
	}

	if hasError {
		w.WriteHeader(http.StatusInternalServerError)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	if err := writeResponse(w, r, response); err != nil {
		log.Errorf("Could not write healthz response: %v", err)
	}
}

func (s *Service) goroutinezHandler(w http.ResponseWriter, _ *http.Request) {
	stack := debug.Stack()
	if _, err := w.Write(stack); err != nil {
		log.WithError(err).Error("Could not write goroutine stack")
	}
	if err := pprof.Lookup("goroutine").WriteTo(w, 2); err != nil {
		log.WithError(err).Error("Could not write pprof goroutines")
	}
}

// Start the prometheus service.
func (s *Service) Start() {
	log.WithField("endpoint", s.server.Addr).Info("Starting service")
	go func() {
		err := s.server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.Errorf("Could not listen to host:port :%s: %v", s.server.Addr, err)
			s.failStatus = err
		}
	}()
}

// Stop the service gracefully.
func (s *Service) Stop() error {
	log.Info("Stopping service")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// Status checks for any service failure conditions.
func (s *Service) Status() error {
	if s.failStatus != nil {
		return s.failStatus
	}
	return nil
}
