// Package server exposes the allocation optimizer over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/semiotic-ai/allocopt/internal/allocopt"
	"github.com/semiotic-ai/allocopt/pkg/constants"
	"github.com/semiotic-ai/allocopt/pkg/grt"
	"go.uber.org/zap"
)

// Allocator runs one optimization. *allocopt.Optimizer satisfies it.
type Allocator interface {
	Allocate(req allocopt.Request) (allocopt.Result, error)
}

type handler struct {
	logger      *zap.Logger
	allocator   Allocator
	maxBodySize int64
	version     string
}

// NewHandler constructs the HTTP handler serving the allocation API.
func NewHandler(logger *zap.Logger, allocator Allocator, maxBodySize int64, version string) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	if maxBodySize <= 0 {
		maxBodySize = constants.DefaultMaxBodySizeBytes
	}

	trimmedVersion := strings.TrimSpace(version)
	if trimmedVersion == "" {
		trimmedVersion = "dev"
	}

	h := &handler{logger: logger, allocator: allocator, maxBodySize: maxBodySize, version: trimmedVersion}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/allocations", h.handleAllocations)
	mux.HandleFunc("/api/convert", h.handleConvert)
	mux.HandleFunc("/api/version", h.handleVersion)
	return mux
}

// allocationRequest is the JSON form of allocopt.Request. Wei amounts are
// strings so they survive JSON number handling intact.
type allocationRequest struct {
	IndexerAddress          string   `json:"indexerAddress"`
	GasPerAllocationWei     string   `json:"gasPerAllocationWei"`
	AllocationLifetime      int      `json:"allocationLifetime"`
	NetworkSubgraphEndpoint string   `json:"networkSubgraphEndpoint"`
	MaxNewAllocations       *int     `json:"maxNewAllocations,omitempty"`
	TauFactor               *float64 `json:"tauFactor,omitempty"`
	Blacklist               []string `json:"blacklist,omitempty"`
	Whitelist               []string `json:"whitelist,omitempty"`
	Pinnedlist              []string `json:"pinnedlist,omitempty"`
	Frozenlist              []string `json:"frozenlist,omitempty"`
	MinSignalWei            string   `json:"minSignalWei,omitempty"`
	OptMode                 string   `json:"optMode,omitempty"`
}

type allocationResponse struct {
	Allocations []allocationEntry `json:"allocations"`
	TotalWei    string            `json:"totalWei"`
	TotalGRT    string            `json:"totalGrt"`
	Duration    string            `json:"duration"`
}

type allocationEntry struct {
	DeploymentID string `json:"deploymentId"`
	AmountWei    string `json:"amountWei"`
	AmountGRT    string `json:"amountGrt"`
}

func (ar allocationRequest) toRequest() (allocopt.Request, error) {
	gas, err := optionalWei("grt_gas_per_allocation", ar.GasPerAllocationWei)
	if err != nil {
		return allocopt.Request{}, err
	}
	minSignal, err := optionalWei("min_signal", ar.MinSignalWei)
	if err != nil {
		return allocopt.Request{}, err
	}
	return allocopt.Request{
		IndexerAddress:          ar.IndexerAddress,
		GasPerAllocation:        gas,
		AllocationLifetime:      ar.AllocationLifetime,
		NetworkSubgraphEndpoint: ar.NetworkSubgraphEndpoint,
		MaxNewAllocations:       ar.MaxNewAllocations,
		TauFactor:               ar.TauFactor,
		Blacklist:               ar.Blacklist,
		Whitelist:               ar.Whitelist,
		Pinnedlist:              ar.Pinnedlist,
		Frozenlist:              ar.Frozenlist,
		MinSignal:               minSignal,
		OptMode:                 ar.OptMode,
	}, nil
}

func optionalWei(field, value string) (*big.Int, error) {
	if value == "" {
		return nil, nil
	}
	wei, err := grt.ParseWei(value)
	if err != nil {
		return nil, &allocopt.ParameterError{Field: field, Err: err}
	}
	return wei, nil
}

func (h *handler) handleAllocations(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleAllocations"
	if r.Method != http.MethodPost {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	if h.allocator == nil {
		h.respondError(w, http.StatusServiceUnavailable, "optimizer is not configured", op)
		return
	}

	start := time.Now()
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	var body allocationRequest
	if err := decoder.Decode(&body); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			h.respondError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("request body exceeds limit of %d bytes", h.maxBodySize), op)
			return
		}
		h.respondError(w, http.StatusBadRequest, fmt.Sprintf("failed to decode request: %v", err), op)
		return
	}

	req, err := body.toRequest()
	if err != nil {
		h.respondError(w, statusFor(err), err.Error(), op)
		return
	}

	result, err := h.allocator.Allocate(req)
	if err != nil {
		h.respondError(w, statusFor(err), err.Error(), op)
		return
	}

	response := allocationResponse{Allocations: make([]allocationEntry, 0, len(result))}
	for _, id := range result.DeploymentIDs() {
		amount, err := grt.Format(result[id])
		if err != nil {
			h.respondError(w, http.StatusBadGateway, err.Error(), op)
			return
		}
		response.Allocations = append(response.Allocations, allocationEntry{
			DeploymentID: id,
			AmountWei:    result[id].String(),
			AmountGRT:    amount,
		})
	}

	total := result.Total()
	totalGRT, err := grt.Format(total)
	if err != nil {
		h.respondError(w, http.StatusBadGateway, err.Error(), op)
		return
	}
	response.TotalWei = total.String()
	response.TotalGRT = totalGRT
	response.Duration = time.Since(start).String()

	h.logger.Info("allocation request served",
		zap.String("op", op),
		zap.Int("allocations", len(response.Allocations)),
		zap.Duration("duration", time.Since(start)),
	)
	h.writeJSON(w, http.StatusOK, response)
}

func (h *handler) handleConvert(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleConvert"
	if r.Method != http.MethodGet {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	wei := r.URL.Query().Get("wei")
	amount, err := grt.WeiStringToDecimal(wei)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), op)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"wei": strings.TrimSpace(wei),
		"grt": amount.String(),
	})
}

func (h *handler) handleVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"version": h.version,
	})
}

// statusFor maps optimizer error kinds to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, allocopt.ErrInvalidParameters):
		return http.StatusBadRequest
	case errors.Is(err, allocopt.ErrEnvironmentUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, allocopt.ErrOptimizationFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, allocopt.ErrMarshaling):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *handler) respondError(w http.ResponseWriter, status int, msg string, op string) {
	h.logger.Error("request failed",
		zap.String("op", op),
		zap.Int("status", status),
		zap.String("error", msg),
	)

	h.writeJSON(w, status, map[string]string{"error": msg})
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", zap.String("op", "server.writeJSON"), zap.Error(err))
	}
}
