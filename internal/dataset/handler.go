package dataset

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/charmbracelet/log"
)

// Handler serves GET /data?set=<name>.
type Handler struct {
	store         *Store
	metrics       *Metrics
	logger        *log.Logger
	missingStatus int
}

// HandlerOptions configure a Handler. MissingStatus defaults to 200.
type HandlerOptions struct {
	Metrics       *Metrics
	Logger        *log.Logger
	MissingStatus int
}

func NewHandler(store *Store, opts HandlerOptions) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	status := opts.MissingStatus
	if status == 0 {
		status = http.StatusOK
	}
	return &Handler{
		store:         store,
		metrics:       opts.Metrics,
		logger:        logger,
		missingStatus: status,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	setNoCacheHeaders(w.Header())

	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	set := lastValue(r.URL.Query(), "set")
	result, err := h.store.Lookup(set)
	switch {
	case errors.Is(err, ErrInvalidSet):
		h.metrics.observe(transportHTTP, resultInvalid, 0)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(err.Error()))
	case err != nil:
		h.metrics.observe(transportHTTP, resultError, 0)
		h.logger.Error("data set lookup failed", "set", set, "err", err)
		w.WriteHeader(http.StatusInternalServerError)
	case !result.Found:
		h.metrics.observe(transportHTTP, resultMiss, 0)
		h.logger.Debug("data set missing", "path", result.Path)
		w.WriteHeader(h.missingStatus)
		_, _ = w.Write([]byte(MissingMessage(result.Path)))
	default:
		h.metrics.observe(transportHTTP, resultHit, len(result.Body))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(result.Body)
	}
}

// lastValue returns the last value of a repeated query parameter.
func lastValue(q url.Values, key string) string {
	values := q[key]
	if len(values) == 0 {
		return ""
	}
	return values[len(values)-1]
}

func setNoCacheHeaders(h http.Header) {
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
	h.Set("Content-Type", "application/json")
}
