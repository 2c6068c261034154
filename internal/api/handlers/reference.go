// reference.go — обработчики справочников: виртуальные организации,
// типы носителей, логические библиотеки, пулы лент, классы хранения,
// маршруты архивации, политики и правила монтирования.
package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/goartstore/tape-catalogue/internal/api/errors"
	"github.com/bigkaa/goartstore/tape-catalogue/internal/api/middleware"
)

// --- Виртуальные организации ---

// CreateVirtualOrganization — POST /api/v1/virtual-organizations.
func (h *APIHandler) CreateVirtualOrganization(w http.ResponseWriter, r *http.Request) {
	var req VirtualOrganizationDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.cat.Reference().CreateVirtualOrganization(r.Context(), middleware.IdentityFromRequest(r), req.model()); err != nil {
		h.fail(w, "CreateVirtualOrganization", err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// ListVirtualOrganizations — GET /api/v1/virtual-organizations.
func (h *APIHandler) ListVirtualOrganizations(w http.ResponseWriter, r *http.Request) {
	vos, err := h.cat.Reference().GetVirtualOrganizations(r.Context())
	if err != nil {
		h.fail(w, "GetVirtualOrganizations", err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(vos, virtualOrganizationDTO))
}

// --- Типы носителей ---

// CreateMediaType — POST /api/v1/media-types.
func (h *APIHandler) CreateMediaType(w http.ResponseWriter, r *http.Request) {
	var req MediaTypeDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.cat.Reference().CreateMediaType(r.Context(), middleware.IdentityFromRequest(r), req.model()); err != nil {
		h.fail(w, "CreateMediaType", err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// ListMediaTypes — GET /api/v1/media-types.
func (h *APIHandler) ListMediaTypes(w http.ResponseWriter, r *http.Request) {
	mts, err := h.cat.Reference().GetMediaTypes(r.Context())
	if err != nil {
		h.fail(w, "GetMediaTypes", err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(mts, mediaTypeDTO))
}

// --- Логические библиотеки ---

// CreateLogicalLibrary — POST /api/v1/logical-libraries.
func (h *APIHandler) CreateLogicalLibrary(w http.ResponseWriter, r *http.Request) {
	var req LogicalLibraryDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.cat.Reference().CreateLogicalLibrary(r.Context(), middleware.IdentityFromRequest(r), req.model()); err != nil {
		h.fail(w, "CreateLogicalLibrary", err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// ListLogicalLibraries — GET /api/v1/logical-libraries.
func (h *APIHandler) ListLogicalLibraries(w http.ResponseWriter, r *http.Request) {
	libs, err := h.cat.Reference().GetLogicalLibraries(r.Context())
	if err != nil {
		h.fail(w, "GetLogicalLibraries", err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(libs, logicalLibraryDTO))
}

// SetLogicalLibraryDisabled — PUT /api/v1/logical-libraries/{name}/disabled.
func (h *APIHandler) SetLogicalLibraryDisabled(w http.ResponseWriter, r *http.Request) {
	var req SetLibraryDisabledRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	err := h.cat.Reference().SetLogicalLibraryDisabled(r.Context(), middleware.IdentityFromRequest(r),
		chi.URLParam(r, "name"), req.Disabled, req.Reason)
	if err != nil {
		h.fail(w, "SetLogicalLibraryDisabled", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Пулы лент ---

// CreateTapePool — POST /api/v1/tape-pools.
func (h *APIHandler) CreateTapePool(w http.ResponseWriter, r *http.Request) {
	var req TapePoolDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.cat.Reference().CreateTapePool(r.Context(), middleware.IdentityFromRequest(r), req.model()); err != nil {
		h.fail(w, "CreateTapePool", err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// ListTapePools — GET /api/v1/tape-pools.
func (h *APIHandler) ListTapePools(w http.ResponseWriter, r *http.Request) {
	pools, err := h.cat.Reference().GetTapePools(r.Context())
	if err != nil {
		h.fail(w, "GetTapePools", err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(pools, tapePoolDTO))
}

// GetTapePool — GET /api/v1/tape-pools/{name}.
func (h *APIHandler) GetTapePool(w http.ResponseWriter, r *http.Request) {
	pool, err := h.cat.Reference().GetTapePool(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.fail(w, "GetTapePool", err)
		return
	}
	writeJSON(w, http.StatusOK, tapePoolDTO(pool))
}

// --- Классы хранения ---

// CreateStorageClass — POST /api/v1/storage-classes.
func (h *APIHandler) CreateStorageClass(w http.ResponseWriter, r *http.Request) {
	var req StorageClassDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	sc, err := h.cat.Reference().CreateStorageClass(r.Context(), middleware.IdentityFromRequest(r), req.model())
	if err != nil {
		h.fail(w, "CreateStorageClass", err)
		return
	}
	writeJSON(w, http.StatusCreated, storageClassDTO(sc))
}

// ListStorageClasses — GET /api/v1/storage-classes.
func (h *APIHandler) ListStorageClasses(w http.ResponseWriter, r *http.Request) {
	classes, err := h.cat.Reference().GetStorageClasses(r.Context())
	if err != nil {
		h.fail(w, "GetStorageClasses", err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(classes, storageClassDTO))
}

// --- Маршруты архивации ---

// CreateArchiveRoute — POST /api/v1/archive-routes.
func (h *APIHandler) CreateArchiveRoute(w http.ResponseWriter, r *http.Request) {
	var req ArchiveRouteDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.cat.Reference().CreateArchiveRoute(r.Context(), middleware.IdentityFromRequest(r), req.model()); err != nil {
		h.fail(w, "CreateArchiveRoute", err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// ListArchiveRoutes — GET /api/v1/archive-routes.
func (h *APIHandler) ListArchiveRoutes(w http.ResponseWriter, r *http.Request) {
	routes, err := h.cat.Reference().GetArchiveRoutes(r.Context())
	if err != nil {
		h.fail(w, "GetArchiveRoutes", err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(routes, archiveRouteDTO))
}

// DeleteArchiveRoute — DELETE /api/v1/archive-routes/{storage_class}/{copy_nb}.
func (h *APIHandler) DeleteArchiveRoute(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "copy_nb")
	copyNb, err := strconv.ParseUint(raw, 10, 8)
	if err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Некорректный номер копии: %q", raw))
		return
	}
	err = h.cat.Reference().DeleteArchiveRoute(r.Context(), middleware.IdentityFromRequest(r),
		chi.URLParam(r, "storage_class"), uint8(copyNb))
	if err != nil {
		h.fail(w, "DeleteArchiveRoute", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Политики и правила монтирования ---

// CreateMountPolicy — POST /api/v1/mount-policies.
func (h *APIHandler) CreateMountPolicy(w http.ResponseWriter, r *http.Request) {
	var req MountPolicyDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.cat.Reference().CreateMountPolicy(r.Context(), middleware.IdentityFromRequest(r), req.model()); err != nil {
		h.fail(w, "CreateMountPolicy", err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// ListMountPolicies — GET /api/v1/mount-policies.
func (h *APIHandler) ListMountPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := h.cat.Reference().GetMountPolicies(r.Context())
	if err != nil {
		h.fail(w, "GetMountPolicies", err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(policies, mountPolicyDTO))
}

// CreateRequesterMountRule — POST /api/v1/mount-rules/requester.
func (h *APIHandler) CreateRequesterMountRule(w http.ResponseWriter, r *http.Request) {
	var req MountRuleDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.cat.Reference().CreateRequesterMountRule(r.Context(), middleware.IdentityFromRequest(r), req.requesterRule()); err != nil {
		h.fail(w, "CreateRequesterMountRule", err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// ListRequesterMountRules — GET /api/v1/mount-rules/requester.
func (h *APIHandler) ListRequesterMountRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.cat.Reference().GetRequesterMountRules(r.Context())
	if err != nil {
		h.fail(w, "GetRequesterMountRules", err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(rules, requesterRuleDTO))
}

// CreateRequesterGroupMountRule — POST /api/v1/mount-rules/group.
func (h *APIHandler) CreateRequesterGroupMountRule(w http.ResponseWriter, r *http.Request) {
	var req MountRuleDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.cat.Reference().CreateRequesterGroupMountRule(r.Context(), middleware.IdentityFromRequest(r), req.groupRule()); err != nil {
		h.fail(w, "CreateRequesterGroupMountRule", err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// ListRequesterGroupMountRules — GET /api/v1/mount-rules/group.
func (h *APIHandler) ListRequesterGroupMountRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.cat.Reference().GetRequesterGroupMountRules(r.Context())
	if err != nil {
		h.fail(w, "GetRequesterGroupMountRules", err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(rules, groupRuleDTO))
}

// CreateRequesterActivityMountRule — POST /api/v1/mount-rules/activity.
func (h *APIHandler) CreateRequesterActivityMountRule(w http.ResponseWriter, r *http.Request) {
	var req MountRuleDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.cat.Reference().CreateRequesterActivityMountRule(r.Context(), middleware.IdentityFromRequest(r), req.activityRule()); err != nil {
		h.fail(w, "CreateRequesterActivityMountRule", err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// ListRequesterActivityMountRules — GET /api/v1/mount-rules/activity.
func (h *APIHandler) ListRequesterActivityMountRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.cat.Reference().GetRequesterActivityMountRules(r.Context())
	if err != nil {
		h.fail(w, "GetRequesterActivityMountRules", err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(rules, activityRuleDTO))
}
