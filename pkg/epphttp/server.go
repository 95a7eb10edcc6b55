// Package epphttp is the thin HTTP submission adapter spec §1 names as an
// external collaborator: it hands raw envelope bytes to the admission
// pipeline (pkg/eppinbox) and maps the resulting Receipt to the wire
// contract and status codes of spec §6. It contains no admission logic of
// its own.
package epphttp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/elliptic1/external-prompt-protocol/pkg/eppinbox"
	"github.com/elliptic1/external-prompt-protocol/pkg/eppreceipt"
)

// MaxBodyBytes bounds the request body the adapter will read before the
// pipeline's own size gate ever runs, so a hostile sender cannot exhaust
// memory submitting an unbounded body.
const MaxBodyBytes = 64 * 1024 * 1024

// Server wires an Inbox behind the three endpoints of spec §6: the submit
// endpoint, a service banner, and a liveness probe.
type Server struct {
	inbox        *eppinbox.Inbox
	recipientHex string
	logger       *slog.Logger
	mux          *http.ServeMux
}

// NewServer builds a Server for inbox, whose own public key (recipientHex)
// is reported in the service banner.
func NewServer(inbox *eppinbox.Inbox, recipientHex string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{inbox: inbox, recipientHex: recipientHex, logger: logger}
	s.mux = http.NewServeMux()
	s.mux.HandleFunc("POST /epp/v1/submit", s.handleSubmit)
	s.mux.HandleFunc("GET /", s.handleBanner)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes+1))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Bad Request", "could not read request body")
		return
	}
	if len(body) > MaxBodyBytes {
		writeProblem(w, http.StatusBadRequest, "Bad Request", "request body too large")
		return
	}

	receipt := s.inbox.Submit(ctx, body)
	s.logReceipt(receipt)

	status := http.StatusOK
	if !receipt.IsAccepted() {
		status = receipt.Error.Code.HTTPStatus()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(receipt)
}

func (s *Server) handleBanner(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeProblem(w, http.StatusNotFound, "Not Found", "no such endpoint")
		return
	}
	banner := map[string]string{
		"service":       "epp-inbox",
		"version":       "1",
		"recipient_key": s.recipientHex,
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(banner)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// logReceipt emits one structured event per admission decision, per
// SPEC_FULL.md's ambient logging convention (log/slog, one line per
// decision carrying envelope_id plus receipt_id/executor when accepted or
// code when rejected).
func (s *Server) logReceipt(receipt eppreceipt.Receipt) {
	if receipt.IsAccepted() {
		s.logger.Info("envelope accepted",
			"envelope_id", receipt.EnvelopeID,
			"receipt_id", receipt.ReceiptID,
			"executor", receipt.Executor,
		)
		return
	}
	s.logger.Warn("envelope rejected",
		"envelope_id", receipt.EnvelopeID,
		"code", receipt.Error.Code,
	)
}

// problemDetail is an RFC 7807 Problem Detail response, the shape the
// teacher's pkg/api/apierror.go uses for the adapter-level errors this
// server raises itself before the admission pipeline runs (unreadable or
// oversized body, unknown path) — distinct from a Receipt, which is the
// pipeline's own typed outcome and is never wrapped in a problem+json
// envelope. Requests with a wrong method are answered by http.ServeMux.
type problemDetail struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	problem := problemDetail{
		Type:   fmt.Sprintf("https://epp.local/errors/%d", status),
		Title:  title,
		Status: status,
		Detail: detail,
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problem)
}

// NewHTTPServer builds a *http.Server bound to addr, serving s with
// reasonable timeouts (the teacher's cmd/helm server wiring convention).
func NewHTTPServer(addr string, s *Server) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.Background() },
	}
}
