package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/rewindhq/rewind/internal/envelope"
	"github.com/rewindhq/rewind/internal/ingest"
	"github.com/rewindhq/rewind/internal/reader"
	"github.com/rewindhq/rewind/internal/runtime"
	logpkg "github.com/rewindhq/rewind/pkg/log"
)

// maxBodyBytes caps a single ingest request body.
const maxBodyBytes = 32 << 20

// contentTypeJSONL is the wire format for event batches in both directions.
const contentTypeJSONL = "application/jsonl+json"

// incompleteHeader marks a 200 response whose stream is missing objects.
const incompleteHeader = "X-Rewind-Incomplete"

type Server struct {
	rt     *runtime.Runtime
	srv    *http.Server
	lis    net.Listener
	logger logpkg.Logger
}

func New(rt *runtime.Runtime, logger logpkg.Logger) *Server {
	if logger == nil {
		logger = logpkg.NewLogger().With(logpkg.Component("http"))
	}
	mux := http.NewServeMux()
	s := &Server{rt: rt, logger: logger}
	s.srv = &http.Server{Handler: cors(s.requestID(mux))}
	mux.HandleFunc("GET /v1/healthz", s.handleHealth)
	mux.HandleFunc("POST /v1/recordings/{sessionId}/events", s.handleIngest)
	mux.HandleFunc("GET /v1/recordings/{sessionId}/events", s.handleRead)
	mux.Handle("GET /metrics", rt.Metrics().Handler())
	return s
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = l
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		return nil
	case err := <-errCh:
		return err
	}
}

// Handler exposes the full middleware chain for in-process tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

func (s *Server) Close() {
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

// cors is deliberately permissive: recording snippets run on arbitrary
// customer origins.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request",
			logpkg.Str("method", r.Method),
			logpkg.Str("path", r.URL.Path),
			logpkg.Str("request_id", id),
			logpkg.Dur("elapsed", time.Since(start)),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.rt.CheckHealth(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "not_serving"})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleIngest accepts a batch of envelopes for one session, either as JSONL
// (one envelope per line) or as a single JSON array. Acceptance means the
// batch is buffered for a durable flush, not yet landed, hence 202.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionId")
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "body too large or unreadable")
		return
	}
	envs, err := decodeBatch(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.rt.Buffer().Append(r.Context(), sessionID, envs); err != nil {
		switch {
		case errors.Is(err, ingest.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, ingest.ErrWriteUnavailable):
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]any{"accepted": len(envs)})
}

// decodeBatch parses the request body strictly: ingest is all-or-nothing, so
// unlike the read path a single bad record rejects the whole batch.
func decodeBatch(body []byte) ([]envelope.Envelope, error) {
	trimmed := firstNonSpace(body)
	if trimmed == '[' {
		var raws []json.RawMessage
		if err := json.Unmarshal(body, &raws); err != nil {
			return nil, err
		}
		envs := make([]envelope.Envelope, 0, len(raws))
		for _, raw := range raws {
			e, err := envelope.Decode(raw)
			if err != nil {
				return nil, err
			}
			envs = append(envs, e)
		}
		return envs, nil
	}

	var envs []envelope.Envelope
	for len(body) > 0 {
		var line []byte
		if i := bytes.IndexByte(body, '\n'); i >= 0 {
			line, body = body[:i], body[i+1:]
		} else {
			line, body = body, nil
		}
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		e, err := envelope.Decode(line)
		if err != nil {
			return nil, err
		}
		envs = append(envs, e)
	}
	return envs, nil
}

func firstNonSpace(b []byte) byte {
	for _, c := range b {
		switch c {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return c
	}
	return 0
}

// handleRead streams the reconstructed session as JSONL. A partial read still
// answers 200 but flags the response so clients can retry for completeness.
func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionId")

	var opts reader.ReadOptions
	if expr := r.URL.Query().Get("filter"); expr != "" {
		filter, err := reader.NewFilter(expr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid filter: "+err.Error())
			return
		}
		opts.Filter = filter
	}

	stream, err := s.rt.Reader().Read(r.Context(), sessionID, opts)
	switch {
	case err == nil:
	case errors.Is(err, reader.ErrPartialRead):
		w.Header().Set(incompleteHeader, "true")
		w.Header().Set("X-Rewind-Failed-Objects", strconv.Itoa(len(stream.FailedObjects)))
	case errors.Is(err, reader.ErrSessionUnavailable):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	default:
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if stream.ParseErrors > 0 {
		w.Header().Set("X-Rewind-Parse-Errors", strconv.Itoa(stream.ParseErrors))
	}
	w.Header().Set("Content-Type", contentTypeJSONL)
	w.WriteHeader(http.StatusOK)
	if _, err := stream.WriteTo(w); err != nil {
		s.logger.Warn("read response truncated",
			logpkg.Str("session_id", sessionID),
			logpkg.Err(err),
		)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
