package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	logger "github.com/Financial-Times/go-logger"
	"github.com/Financial-Times/http-handlers-go/httphandlers"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	metrics "github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"

	"github.com/Financial-Times/record-lake-transformer/catalog"
)

type Handler struct {
	service Service
	timeout time.Duration
}

func NewHandler(service Service, timeout time.Duration) *Handler {
	return &Handler{
		service: service,
		timeout: timeout,
	}
}

func (h *Handler) RegisterHandlers(healthService *HealthService, requestLoggingOn bool, feedback chan<- bool) http.Handler {
	logger.Info("Registering handlers")
	router := mux.NewRouter()
	router.Handle("/records/{key:.*}", handlers.MethodHandler{
		"GET": http.HandlerFunc(h.GetProcessedRecordHandler),
	})
	router.Handle("/crawler", handlers.MethodHandler{
		"GET":  http.HandlerFunc(h.CrawlerStatusHandler),
		"POST": http.HandlerFunc(h.RunCrawlerHandler),
	})
	router.Handle("/table", handlers.MethodHandler{
		"GET": http.HandlerFunc(h.TableMetadataHandler),
	})
	router.Handle("/query", handlers.MethodHandler{
		"POST": http.HandlerFunc(h.QueryHandler),
	})

	healthService.RegisterAdminHandlers(router)
	go healthService.Monitor(feedback)

	var monitoringRouter http.Handler = router
	if requestLoggingOn {
		monitoringRouter = httphandlers.TransactionAwareRequestLoggingHandler(logrus.StandardLogger(), monitoringRouter)
	}
	monitoringRouter = httphandlers.HTTPMetricsHandler(metrics.DefaultRegistry, monitoringRouter)
	return monitoringRouter
}

// GetProcessedRecordHandler serves the transformed version of a source key.
func (h *Handler) GetProcessedRecordHandler(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	body, found, err := h.service.GetProcessedRecord(ctx, key)
	if err != nil {
		writeJSONMessage(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !found {
		writeJSONMessage(w, http.StatusNotFound, fmt.Sprintf("no processed record for key %s", key))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

func (h *Handler) RunCrawlerHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.service.RunCrawler(ctx); err != nil {
		if errors.Is(err, catalog.ErrCrawlerRunning) {
			writeJSONMessage(w, http.StatusConflict, err.Error())
			return
		}
		writeJSONMessage(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSONMessage(w, http.StatusAccepted, "crawler started")
}

func (h *Handler) CrawlerStatusHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	status, err := h.service.CrawlerStatus(ctx)
	if err != nil {
		writeJSONMessage(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSONResponse(w, status)
}

func (h *Handler) TableMetadataHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	table, err := h.service.TableMetadata(ctx)
	if err != nil {
		writeJSONMessage(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSONResponse(w, table)
}

func (h *Handler) QueryHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SQL string `json:"sql"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONMessage(w, http.StatusBadRequest, "request body must be JSON with an sql field")
		return
	}
	if req.SQL == "" {
		writeJSONMessage(w, http.StatusBadRequest, "sql must be provided")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	result, err := h.service.ExecuteQuery(ctx, req.SQL)
	if err != nil {
		writeJSONMessage(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSONResponse(w, result)
}

func writeJSONResponse(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.WithError(err).Error("Error whilst encoding response")
	}
}

func writeJSONMessage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"message": %q}`, message)
}
