package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/vitrinehq/vitrine/internal/domain"
	"github.com/vitrinehq/vitrine/internal/service"
	"github.com/vitrinehq/vitrine/internal/store"
)

type TenantHandler struct {
	tenants domain.TenantStore
	svc     *service.ProvisioningService
	cluster domain.ClusterClient
}

func NewTenantHandler(tenants domain.TenantStore, svc *service.ProvisioningService, cluster domain.ClusterClient) *TenantHandler {
	return &TenantHandler{tenants: tenants, svc: svc, cluster: cluster}
}

type provisionRequest struct {
	Email          string `json:"email"`
	Plan           string `json:"plan"`
	SubscriptionID string `json:"subscription_id"`
	CustomerID     string `json:"customer_id,omitempty"`
	PriceID        string `json:"price_id,omitempty"`
}

type listTenantsResponse struct {
	Tenants []domain.Tenant `json:"tenants"`
	Total   int             `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

type tenantStatusResponse struct {
	Tenant          *domain.Tenant          `json:"tenant"`
	NamespaceExists bool                    `json:"namespace_exists"`
	Workloads       *domain.WorkloadSummary `json:"workloads,omitempty"`
}

func (h *TenantHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	tenants, total, err := h.tenants.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list tenants")
		return
	}
	writeJSON(w, http.StatusOK, listTenantsResponse{
		Tenants: tenants,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	})
}

func (h *TenantHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid tenant id")
		return
	}
	tenant, err := h.tenants.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "tenant not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load tenant")
		return
	}
	writeJSON(w, http.StatusOK, tenant)
}

func (h *TenantHandler) GetByNamespace(w http.ResponseWriter, r *http.Request) {
	namespace := chi.URLParam(r, "namespace")
	tenant, err := h.tenants.GetByNamespace(r.Context(), namespace)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "tenant not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load tenant")
		return
	}
	writeJSON(w, http.StatusOK, tenant)
}

// Provision creates a tenant directly, without a billing event. Used for
// manual onboarding and staging environments.
func (h *TenantHandler) Provision(w http.ResponseWriter, r *http.Request) {
	var req provisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.SubscriptionID == "" {
		writeError(w, http.StatusBadRequest, "email and subscription_id are required")
		return
	}
	if req.Plan == "" {
		req.Plan = "starter"
	}

	tenant, err := h.svc.Provision(r.Context(), service.ProvisionIntent{
		Email:          req.Email,
		Plan:           req.Plan,
		SubscriptionID: req.SubscriptionID,
		CustomerID:     req.CustomerID,
		PriceID:        req.PriceID,
	})
	if err != nil {
		if tenant != nil && tenant.Status == domain.TenantStatusFailed {
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"error":  "provisioning failed",
				"tenant": tenant,
			})
			return
		}
		writeError(w, http.StatusInternalServerError, "provisioning failed")
		return
	}
	writeJSON(w, http.StatusCreated, tenant)
}

func (h *TenantHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid tenant id")
		return
	}
	tenant, err := h.svc.Delete(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTenantNotFound):
			writeError(w, http.StatusNotFound, "tenant not found")
		case errors.Is(err, service.ErrInvalidTransition):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "failed to delete tenant")
		}
		return
	}
	writeJSON(w, http.StatusOK, tenant)
}

// Status reports the stored record together with a live cluster view.
func (h *TenantHandler) Status(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid tenant id")
		return
	}
	tenant, err := h.tenants.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "tenant not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load tenant")
		return
	}

	resp := tenantStatusResponse{Tenant: tenant}
	exists, err := h.cluster.NamespaceExists(r.Context(), tenant.Namespace)
	if err == nil {
		resp.NamespaceExists = exists
		if exists {
			if summary, serr := h.cluster.WorkloadSummary(r.Context(), tenant.Namespace); serr == nil {
				resp.Workloads = &summary
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *TenantHandler) Suspend(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.svc.Suspend)
}

func (h *TenantHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.svc.Resume)
}

func (h *TenantHandler) lifecycle(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id uuid.UUID) (*domain.Tenant, error)) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid tenant id")
		return
	}
	tenant, err := op(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTenantNotFound):
			writeError(w, http.StatusNotFound, "tenant not found")
		case errors.Is(err, service.ErrInvalidTransition):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "operation failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, tenant)
}
