package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kaidolaptops/price-scraper/internal/jobs"
	"github.com/kaidolaptops/price-scraper/internal/models"
	"github.com/kaidolaptops/price-scraper/internal/pricing"
	"github.com/kaidolaptops/price-scraper/internal/sites"
	"github.com/kaidolaptops/price-scraper/internal/storage"
)

// maxBatchSize bounds synchronous batches; larger ones belong in a job.
const maxBatchSize = 10

// BatchTimeout is the request deadline a synchronous batch needs when one
// fetch may take up to perFetch. The browser is shared with the job worker,
// so every entry can also wait behind one job fetch.
func BatchTimeout(perFetch time.Duration) time.Duration {
	return 2 * maxBatchSize * perFetch
}

type PriceFetcher interface {
	FetchAll(ctx context.Context, reqs []models.PriceRequest) []models.PriceResult
}

type JobService interface {
	CreateJob(ctx context.Context, reqs []models.PriceRequest) (*jobs.Job, error)
	GetJob(ctx context.Context, jobID string) (*jobs.Job, error)
	ListJobs(ctx context.Context) []*jobs.Job
}

type HistoryStore interface {
	History(ctx context.Context, url string, limit int) ([]storage.Observation, error)
	Latest(ctx context.Context, url string) (*storage.Observation, error)
	Ping(ctx context.Context) error
}

type Handlers struct {
	fetcher  PriceFetcher
	jobs     JobService
	history  HistoryStore
	recorder pricing.Recorder
	logger   *slog.Logger
}

// NewHandlers wires the API. history and recorder may be nil when storage
// and events are not configured.
func NewHandlers(fetcher PriceFetcher, jobs JobService, history HistoryStore, recorder pricing.Recorder, logger *slog.Logger) *Handlers {
	return &Handlers{
		fetcher:  fetcher,
		jobs:     jobs,
		history:  history,
		recorder: recorder,
		logger:   logger.With("component", "api"),
	}
}

// GetPrices prices a batch synchronously and answers with the results in
// request order.
func (h *Handlers) GetPrices(w http.ResponseWriter, r *http.Request) {
	reqs, ok := h.decodeBatch(w, r)
	if !ok {
		return
	}

	if len(reqs) > maxBatchSize {
		h.respondError(w, http.StatusRequestEntityTooLarge, "too many requests in batch, create a job instead")
		return
	}

	results := h.fetcher.FetchAll(r.Context(), reqs)

	// Past the deadline the tail of the batch failed without being tried and
	// the timeout middleware answers instead.
	if err := r.Context().Err(); err != nil {
		h.logger.Warn("price batch abandoned", "requests", len(reqs), "error", err)
		return
	}

	if h.recorder != nil {
		if err := h.recorder.Record(r.Context(), results); err != nil {
			h.logger.Error("failed to record prices", "error", err)
		}
	}

	h.respondJSON(w, http.StatusOK, results)
}

type CreateJobResponse struct {
	JobID   string      `json:"job_id"`
	Status  jobs.Status `json:"status"`
	Message string      `json:"message"`
}

func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	reqs, ok := h.decodeBatch(w, r)
	if !ok {
		return
	}

	job, err := h.jobs.CreateJob(r.Context(), reqs)
	if err != nil {
		if errors.Is(err, jobs.ErrQueueClosed) {
			h.respondError(w, http.StatusServiceUnavailable, "server is shutting down")
			return
		}
		h.logger.Error("failed to create job", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	h.respondJSON(w, http.StatusAccepted, CreateJobResponse{
		JobID:   job.ID,
		Status:  job.Status,
		Message: "Job created successfully",
	})
}

func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if jobID == "" {
		h.respondError(w, http.StatusBadRequest, "job ID is required")
		return
	}

	job, err := h.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			h.respondError(w, http.StatusNotFound, "job not found")
			return
		}
		h.logger.Error("failed to get job", "error", err, "job_id", jobID)
		h.respondError(w, http.StatusInternalServerError, "failed to get job")
		return
	}

	h.respondJSON(w, http.StatusOK, job)
}

func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.jobs.ListJobs(r.Context()))
}

// GetHistory returns stored observations for ?url=, newest first.
func (h *Handlers) GetHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.respondError(w, http.StatusServiceUnavailable, "price history is not configured")
		return
	}

	url := r.URL.Query().Get("url")
	if url == "" {
		h.respondError(w, http.StatusBadRequest, "url is required")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	observations, err := h.history.History(r.Context(), url, limit)
	if err != nil {
		h.logger.Error("failed to load price history", "error", err, "url", url)
		h.respondError(w, http.StatusInternalServerError, "failed to load price history")
		return
	}

	h.respondJSON(w, http.StatusOK, observations)
}

// GetLatest returns the newest successful observation for ?url=.
func (h *Handlers) GetLatest(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.respondError(w, http.StatusServiceUnavailable, "price history is not configured")
		return
	}

	url := r.URL.Query().Get("url")
	if url == "" {
		h.respondError(w, http.StatusBadRequest, "url is required")
		return
	}

	latest, err := h.history.Latest(r.Context(), url)
	if err != nil {
		if errors.Is(err, storage.ErrNoObservations) {
			h.respondError(w, http.StatusNotFound, "no price recorded for url")
			return
		}
		h.logger.Error("failed to load latest price", "error", err, "url", url)
		h.respondError(w, http.StatusInternalServerError, "failed to load latest price")
		return
	}

	h.respondJSON(w, http.StatusOK, latest)
}

type SiteInfo struct {
	ID       string `json:"id"`
	Domain   string `json:"domain"`
	Selector string `json:"selector"`
}

func (h *Handlers) ListSites(w http.ResponseWriter, r *http.Request) {
	all := sites.All()
	out := make([]SiteInfo, len(all))
	for i, s := range all {
		out[i] = SiteInfo{ID: s.String(), Domain: s.Domain(), Selector: s.Selector()}
	}
	h.respondJSON(w, http.StatusOK, out)
}

type ExtractRequest struct {
	Company string `json:"company"`
	HTML    string `json:"html"`
}

type ExtractResponse struct {
	Company string         `json:"company"`
	Price   int            `json:"price"`
	Found   bool           `json:"found"`
	Failure models.Failure `json:"failure,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Extract runs a site's extractor against posted HTML without a browser.
func (h *Handlers) Extract(w http.ResponseWriter, r *http.Request) {
	var req ExtractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.HTML == "" {
		h.respondError(w, http.StatusBadRequest, "html is required")
		return
	}

	site, ok := sites.Parse(req.Company)
	if !ok {
		h.respondJSON(w, http.StatusOK, ExtractResponse{
			Company: req.Company,
			Failure: models.FailureUnsupportedSite,
		})
		return
	}

	page, err := sites.NewHTMLPageFromString(req.HTML)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "html could not be parsed")
		return
	}

	price, err := sites.Extract(site, page)
	if err != nil {
		h.respondJSON(w, http.StatusOK, ExtractResponse{
			Company: site.String(),
			Failure: pricing.Classify(err),
			Error:   err.Error(),
		})
		return
	}

	h.respondJSON(w, http.StatusOK, ExtractResponse{
		Company: site.String(),
		Price:   price,
		Found:   true,
	})
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC(),
	}

	status := http.StatusOK
	if h.history != nil {
		health["database"] = "ok"
		if err := h.history.Ping(r.Context()); err != nil {
			h.logger.Error("database ping failed", "error", err)
			health["status"] = "error"
			health["database"] = "unavailable"
			status = http.StatusServiceUnavailable
		}
	}

	h.respondJSON(w, status, health)
}

func (h *Handlers) decodeBatch(w http.ResponseWriter, r *http.Request) ([]models.PriceRequest, bool) {
	var reqs []models.PriceRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		h.respondError(w, http.StatusBadRequest, "body must be a JSON list of price requests")
		return nil, false
	}

	if len(reqs) == 0 {
		h.respondError(w, http.StatusBadRequest, "at least one request is required")
		return nil, false
	}

	for i, req := range reqs {
		if req.URL == "" || req.Company == "" {
			h.respondError(w, http.StatusBadRequest, "request "+strconv.Itoa(i)+": laptoplink and company are required")
			return nil, false
		}
	}

	return reqs, true
}

// Helper methods
func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
