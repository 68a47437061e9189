// Copyright (c) 2024 Canonical Ltd
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License version 3 as
// published by the Free Software Foundation.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package statusapi is an optional, off-by-default local HTTP endpoint
// exposing job-table state and the job-control metrics counters to tooling
// that wants to observe the shell without scraping terminal output. It is
// started only when the shell is given a --status-addr (or a status_addr
// in its settings file), mirroring the
// teacher's internals/metrics package, which serves its own Prometheus-text
// registry over a gorilla/mux router the same way.
package statusapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/pboisselier/gosh/internal/job"
	"github.com/pboisselier/gosh/internal/metrics"
)

// Server serves job-table snapshots and metrics over HTTP.
type Server struct {
	table  *job.Table
	server *http.Server
}

// New builds a Server bound to addr, reading from tbl. Call Serve to start
// accepting connections; it blocks until the listener stops (mirroring
// http.ListenAndServe's contract the teacher's metrics package calls
// directly).
func New(addr string, tbl *job.Table) *Server {
	router := mux.NewRouter()
	s := &Server{table: tbl}

	router.HandleFunc("/jobs", s.handleJobs).Methods(http.MethodGet)
	router.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)

	s.server = &http.Server{Addr: addr, Handler: router}
	return s
}

// Serve starts accepting connections; it returns http.ErrServerClosed after
// a call to Shutdown/Close, matching the stdlib server's contract.
func (s *Server) Serve() error {
	return s.server.ListenAndServe()
}

// Close shuts the server down immediately.
func (s *Server) Close() error {
	return s.server.Close()
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	snapshot := s.table.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snapshot); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	metrics.JobTableSize.WithLabelValues().Set(float64(s.table.Size()))
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(metrics.GetRegistry().GatherMetrics()))
}
