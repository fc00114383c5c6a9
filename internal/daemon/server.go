package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"millwork/internal/api"
	"millwork/internal/config"
	"millwork/internal/jobs"
	"millwork/internal/logging"
)

// apiServer exposes the job queue over HTTP. Read routes are open; mutating
// routes require the configured bearer token.
type apiServer struct {
	bind   string
	daemon *Daemon
	logger *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &apiServer{
		bind:   bind,
		daemon: d,
		logger: logging.WithComponent(logger, "api"),
	}

	token := cfg.Paths.APIToken
	router := mux.NewRouter()
	router.HandleFunc("/api/jobs", requireToken(token, s.handleCreateJob)).Methods(http.MethodPost)
	router.HandleFunc("/api/jobs", s.handleListJobs).Methods(http.MethodGet)
	router.HandleFunc("/api/jobs/{id:[0-9]+}", s.handleGetJob).Methods(http.MethodGet)
	router.HandleFunc("/api/jobs/{id:[0-9]+}/progress", s.handleProgress).Methods(http.MethodGet)
	router.HandleFunc("/api/jobs/{id:[0-9]+}/steps", s.handleSteps).Methods(http.MethodGet)
	router.HandleFunc("/api/jobs/{id:[0-9]+}/execute", requireToken(token, s.handleExecute)).Methods(http.MethodPost)
	router.HandleFunc("/api/jobs/{id:[0-9]+}/cancel", requireToken(token, s.handleCancel)).Methods(http.MethodPost)
	router.HandleFunc("/api/jobs/{id:[0-9]+}/retry", requireToken(token, s.handleRetry)).Methods(http.MethodPost)
	router.HandleFunc("/api/status", s.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/api/log", s.handleLog).Methods(http.MethodGet)
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, http.StatusNotFound, "not found")
	})

	// Execute holds the response open for the length of a pipeline run, so
	// the server carries no write timeout.
	s.server = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

func (s *apiServer) start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil
	}

	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return err
	}
	s.listener = listener
	s.server.BaseContext = func(net.Listener) context.Context { return ctx }

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server terminated", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		s.stop()
	}()

	s.logger.Info("api server listening", logging.String("addr", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("api server shutdown", logging.Error(err))
	}
	s.listener = nil
}

func (s *apiServer) addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req api.CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	job, err := api.CreateJob(r.Context(), s.daemon.store, req)
	if err != nil {
		switch {
		case errors.Is(err, api.ErrInvalidInput):
			s.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, jobs.ErrDuplicateActive):
			s.writeError(w, http.StatusConflict, err.Error())
		default:
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	s.writeJSON(w, http.StatusCreated, api.JobResponse{Job: job})
}

func (s *apiServer) handleListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var statuses []string
	for _, raw := range query["status"] {
		statuses = append(statuses, strings.Split(raw, ",")...)
	}
	limit, _ := strconv.Atoi(query.Get("limit"))
	offset, _ := strconv.Atoi(query.Get("offset"))

	resp, err := api.ListJobs(r.Context(), s.daemon.store, statuses, query.Get("type"), limit, offset)
	if err != nil {
		if errors.Is(err, api.ErrInvalidInput) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r)
	if !ok {
		return
	}
	resp, err := api.DescribeJob(r.Context(), s.daemon.store, id)
	if err != nil {
		if errors.Is(err, api.ErrJobNotFound) {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleProgress(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r)
	if !ok {
		return
	}
	progress, err := api.JobProgress(r.Context(), s.daemon.store, id)
	if err != nil {
		if errors.Is(err, api.ErrJobNotFound) {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, progress)
}

func (s *apiServer) handleSteps(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r)
	if !ok {
		return
	}
	steps, err := s.daemon.store.StepsForJob(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.StepListResponse{Steps: api.StepsFromModels(steps)})
}

// handleExecute claims the job and runs it to completion before responding,
// so the external trigger sees the terminal state.
func (s *apiServer) handleExecute(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r)
	if !ok {
		return
	}
	job, err := s.daemon.dispatcher.RunByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, jobs.ErrNotClaimable) {
			s.writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobResponse{Job: api.JobFromModel(job)})
}

func (s *apiServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r)
	if !ok {
		return
	}
	job, err := api.CancelJob(r.Context(), s.daemon.store, id)
	if err != nil {
		switch {
		case errors.Is(err, api.ErrJobNotFound):
			s.writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, jobs.ErrNotCancellable):
			s.writeError(w, http.StatusConflict, err.Error())
		default:
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobResponse{Job: job})
}

func (s *apiServer) handleRetry(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r)
	if !ok {
		return
	}
	job, err := api.RetryJob(r.Context(), s.daemon.store, id)
	if err != nil {
		switch {
		case errors.Is(err, api.ErrJobNotFound):
			s.writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, jobs.ErrNotClaimable):
			s.writeError(w, http.StatusConflict, err.Error())
		default:
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobResponse{Job: job})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status(r.Context())
	s.writeJSON(w, http.StatusOK, api.StatusResponse{
		Running:      status.Running,
		JobDBPath:    status.JobDBPath,
		LockFilePath: status.LockFilePath,
		JobTypes:     status.JobTypes,
		Jobs:         api.StatsFromModel(status.Jobs),
	})
}

func (s *apiServer) handleLog(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	resp, err := api.SystemLog(r.Context(), s.daemon.store, query.Get("category"), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) jobID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, http.StatusBadRequest, "invalid job id")
		return 0, false
	}
	return id, true
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}
