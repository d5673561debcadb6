// Package handler provides HTTP handlers for the route profile API.
package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/routeprofile/routeprofile/internal/api/models"
	"github.com/routeprofile/routeprofile/internal/api/response"
	"github.com/routeprofile/routeprofile/internal/provider/resilience"
	"github.com/routeprofile/routeprofile/internal/routing"
)

// CacheStatsProvider reports routing cache occupancy. *routing.Service implements it.
type CacheStatsProvider interface {
	CacheStats() routing.CacheStats
}

// OpsConfig holds the dependencies of the ops endpoints. All fields except
// Version and BuildTime are optional.
type OpsConfig struct {
	Version   string
	BuildTime string

	// Registry reports provider circuit health.
	Registry *resilience.Registry

	// Cache reports routing cache statistics.
	Cache CacheStatsProvider

	// StoreName and StoreCheck describe the profile store. StoreCheck is
	// called by the readiness and status endpoints.
	StoreName  string
	StoreCheck func(ctx context.Context) error
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	cfg OpsConfig
	now func() time.Time
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	if cfg.StoreName == "" {
		cfg.StoreName = "profile-store"
	}
	return &OpsHandler{cfg: cfg, now: time.Now}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.now()),
		Details: map[string]any{
			"version":   h.cfg.Version,
			"buildTime": h.cfg.BuildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready - readiness check.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.now()),
	}
	if err := h.checkStore(r.Context()); err != nil {
		health.Status = models.HealthStatusFail
		health.Details = map[string]any{h.cfg.StoreName: err.Error()}
		response.JSON(w, r, http.StatusServiceUnavailable, health)
		return
	}
	response.JSON(w, r, http.StatusOK, health)
}

// SystemStatus handles GET /v1/ops/status - provider and subsystem status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:     models.HealthStatusOK,
		Time:       models.Timestamp(h.now()),
		Subsystems: []models.SubsystemStatus{},
		Providers:  []models.ProviderStatus{},
	}

	storeStatus := models.SubsystemStatus{Name: h.cfg.StoreName, Status: models.HealthStatusOK}
	if err := h.checkStore(r.Context()); err != nil {
		detail := err.Error()
		storeStatus.Status = models.HealthStatusFail
		storeStatus.Detail = &detail
	}
	status.Subsystems = append(status.Subsystems, storeStatus)

	if h.cfg.Cache != nil {
		stats := h.cfg.Cache.CacheStats()
		detail := fmt.Sprintf("%d fresh, %d stale entries", stats.FreshEntries, stats.StaleEntries)
		status.Subsystems = append(status.Subsystems, models.SubsystemStatus{
			Name:   "routing-cache",
			Status: models.HealthStatusOK,
			Detail: &detail,
		})
	}

	if h.cfg.Registry != nil {
		for _, ph := range h.cfg.Registry.Snapshot() {
			status.Providers = append(status.Providers, toProviderStatus(ph))
		}
	}

	status.Status = overallStatus(status)
	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) checkStore(ctx context.Context) error {
	if h.cfg.StoreCheck == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return h.cfg.StoreCheck(ctx)
}

func toProviderStatus(ph resilience.Health) models.ProviderStatus {
	ps := models.ProviderStatus{
		Provider:            ph.Name,
		CircuitState:        ph.State.String(),
		ConsecutiveFailures: ph.Counts.ConsecutiveFailures,
		Requests:            ph.Requests,
		Failures:            ph.Failures,
	}
	switch ph.Status() {
	case resilience.StatusUnhealthy:
		ps.Status = models.HealthStatusFail
	case resilience.StatusDegraded:
		ps.Status = models.HealthStatusDegraded
	default:
		ps.Status = models.HealthStatusOK
	}
	if !ph.LastSuccessAt.IsZero() {
		ts := models.Timestamp(ph.LastSuccessAt)
		ps.LastSuccessAt = &ts
	}
	if !ph.LastFailureAt.IsZero() {
		ts := models.Timestamp(ph.LastFailureAt)
		ps.LastFailureAt = &ts
	}
	if ph.LastError != "" {
		msg := ph.LastError
		ps.Message = &msg
	}
	return ps
}

// overallStatus is FAIL when a subsystem fails and DEGRADED when any provider
// is not OK.
func overallStatus(s models.SystemStatus) models.HealthStatus {
	for _, sub := range s.Subsystems {
		if sub.Status == models.HealthStatusFail {
			return models.HealthStatusFail
		}
	}
	for _, p := range s.Providers {
		if p.Status != models.HealthStatusOK {
			return models.HealthStatusDegraded
		}
	}
	return models.HealthStatusOK
}
