// tapes.go — обработчики /api/v1/tapes и выбора лент для записи.
package handlers

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/goartstore/tape-catalogue/internal/api/errors"
	"github.com/bigkaa/goartstore/tape-catalogue/internal/api/middleware"
	"github.com/bigkaa/goartstore/tape-catalogue/internal/domain/model"
)

// CreateTape — POST /api/v1/tapes.
func (h *APIHandler) CreateTape(w http.ResponseWriter, r *http.Request) {
	var req CreateTapeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	attrs := req.model()
	if err := h.cat.Tapes().CreateTape(r.Context(), middleware.IdentityFromRequest(r), attrs); err != nil {
		h.fail(w, "CreateTape", err)
		return
	}

	tapes, err := h.cat.Tapes().GetTapesByVID(r.Context(), []string{attrs.VID}, false)
	if err != nil {
		h.fail(w, "CreateTape", err)
		return
	}
	writeJSON(w, http.StatusCreated, tapeDTO(tapes[attrs.VID]))
}

// tapeSearchCriteria привязывает query-параметры GET /api/v1/tapes.
func tapeSearchCriteria(w http.ResponseWriter, r *http.Request) (model.TapeSearchCriteria, bool) {
	var c model.TapeSearchCriteria
	ok := bindQuery(w, r,
		queryParam{"vid", &c.VID},
		queryParam{"media_type", &c.MediaType},
		queryParam{"vendor", &c.Vendor},
		queryParam{"logical_library", &c.LogicalLibrary},
		queryParam{"tape_pool", &c.TapePool},
		queryParam{"vo", &c.VO},
		queryParam{"capacity_in_bytes", &c.CapacityInBytes},
		queryParam{"state", &c.State},
		queryParam{"full", &c.Full},
		queryParam{"disk_file_id", &c.DiskFileIDs},
		queryParam{"purchase_order", &c.PurchaseOrder},
	)
	return c, ok
}

// GetTapes — GET /api/v1/tapes.
func (h *APIHandler) GetTapes(w http.ResponseWriter, r *http.Request) {
	criteria, ok := tapeSearchCriteria(w, r)
	if !ok {
		return
	}
	tapes, err := h.cat.Tapes().GetTapes(r.Context(), criteria)
	if err != nil {
		h.fail(w, "GetTapes", err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(tapes, tapeDTO))
}

// GetTape — GET /api/v1/tapes/{vid}.
func (h *APIHandler) GetTape(w http.ResponseWriter, r *http.Request) {
	vid := chi.URLParam(r, "vid")
	tapes, err := h.cat.Tapes().GetTapesByVID(r.Context(), []string{vid}, true)
	if err != nil {
		h.fail(w, "GetTape", err)
		return
	}
	t, ok := tapes[vid]
	if !ok {
		apierrors.NotFound(w, "Лента не найдена: "+vid)
		return
	}
	writeJSON(w, http.StatusOK, tapeDTO(t))
}

// GetTapesByVID — POST /api/v1/tapes/by-vid: пакетное получение лент.
func (h *APIHandler) GetTapesByVID(w http.ResponseWriter, r *http.Request) {
	var req struct {
		VIDs          []string `json:"vids"`
		IgnoreMissing bool     `json:"ignore_missing"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	tapes, err := h.cat.Tapes().GetTapesByVID(r.Context(), req.VIDs, req.IgnoreMissing)
	if err != nil {
		h.fail(w, "GetTapesByVID", err)
		return
	}
	vids := make([]string, 0, len(tapes))
	for vid := range tapes {
		vids = append(vids, vid)
	}
	sort.Strings(vids)
	out := make([]TapeDTO, 0, len(vids))
	for _, vid := range vids {
		out = append(out, tapeDTO(tapes[vid]))
	}
	writeJSON(w, http.StatusOK, out)
}

// DeleteTape — DELETE /api/v1/tapes/{vid}.
func (h *APIHandler) DeleteTape(w http.ResponseWriter, r *http.Request) {
	if err := h.cat.Tapes().DeleteTape(r.Context(), chi.URLParam(r, "vid")); err != nil {
		h.fail(w, "DeleteTape", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ModifyTape — PATCH /api/v1/tapes/{vid}: комментарий, статус проверки,
// имя ключа шифрования.
func (h *APIHandler) ModifyTape(w http.ResponseWriter, r *http.Request) {
	var req ModifyTapeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	vid := chi.URLParam(r, "vid")
	admin := middleware.IdentityFromRequest(r)
	tapes := h.cat.Tapes()

	if req.Comment != nil {
		if err := tapes.ModifyTapeComment(r.Context(), admin, vid, req.Comment); err != nil {
			h.fail(w, "ModifyTapeComment", err)
			return
		}
	}
	if req.VerificationStatus != nil {
		if err := tapes.ModifyTapeVerificationStatus(r.Context(), admin, vid, req.VerificationStatus); err != nil {
			h.fail(w, "ModifyTapeVerificationStatus", err)
			return
		}
	}
	if req.EncryptionKeyName != nil {
		if err := tapes.ModifyTapeEncryptionKeyName(r.Context(), admin, vid, req.EncryptionKeyName); err != nil {
			h.fail(w, "ModifyTapeEncryptionKeyName", err)
			return
		}
	}
	h.GetTape(w, r)
}

// ModifyTapeState — PUT /api/v1/tapes/{vid}/state.
func (h *APIHandler) ModifyTapeState(w http.ResponseWriter, r *http.Request) {
	var req ModifyTapeStateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	var prev *model.TapeState
	if req.PrevState != nil {
		p := model.TapeState(*req.PrevState)
		prev = &p
	}
	err := h.cat.Tapes().ModifyTapeState(r.Context(), middleware.IdentityFromRequest(r),
		chi.URLParam(r, "vid"), model.TapeState(req.State), prev, req.Reason)
	if err != nil {
		h.fail(w, "ModifyTapeState", err)
		return
	}
	h.GetTape(w, r)
}

// SetTapeFull — PUT /api/v1/tapes/{vid}/full.
func (h *APIHandler) SetTapeFull(w http.ResponseWriter, r *http.Request) {
	var req FlagRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	err := h.cat.Tapes().SetTapeFull(r.Context(), middleware.IdentityFromRequest(r), chi.URLParam(r, "vid"), req.Value)
	if err != nil {
		h.fail(w, "SetTapeFull", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetTapeDirty — PUT /api/v1/tapes/{vid}/dirty.
func (h *APIHandler) SetTapeDirty(w http.ResponseWriter, r *http.Request) {
	var req FlagRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	err := h.cat.Tapes().SetTapeDirty(r.Context(), middleware.IdentityFromRequest(r), chi.URLParam(r, "vid"), req.Value)
	if err != nil {
		h.fail(w, "SetTapeDirty", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReclaimTape — POST /api/v1/tapes/{vid}/reclaim.
func (h *APIHandler) ReclaimTape(w http.ResponseWriter, r *http.Request) {
	if err := h.cat.Tapes().ReclaimTape(r.Context(), middleware.IdentityFromRequest(r), chi.URLParam(r, "vid")); err != nil {
		h.fail(w, "ReclaimTape", err)
		return
	}
	h.GetTape(w, r)
}

// NoSpaceLeftOnTape — POST /api/v1/tapes/{vid}/no-space-left.
func (h *APIHandler) NoSpaceLeftOnTape(w http.ResponseWriter, r *http.Request) {
	if err := h.cat.Tapes().NoSpaceLeftOnTape(r.Context(), chi.URLParam(r, "vid")); err != nil {
		h.fail(w, "NoSpaceLeftOnTape", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TapeLabelled — POST /api/v1/tapes/{vid}/labelled.
func (h *APIHandler) TapeLabelled(w http.ResponseWriter, r *http.Request) {
	var req DriveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.cat.Tapes().TapeLabelled(r.Context(), chi.URLParam(r, "vid"), req.Drive); err != nil {
		h.fail(w, "TapeLabelled", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TapeMounted — POST /api/v1/tapes/{vid}/mounts.
func (h *APIHandler) TapeMounted(w http.ResponseWriter, r *http.Request) {
	var req MountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	vid := chi.URLParam(r, "vid")

	var err error
	switch model.TapeMountType(req.Type) {
	case model.TapeMountArchive:
		err = h.cat.Tapes().TapeMountedForArchive(r.Context(), vid, req.Drive)
	case model.TapeMountRetrieve:
		err = h.cat.Tapes().TapeMountedForRetrieve(r.Context(), vid, req.Drive)
	default:
		apierrors.ValidationError(w, "Тип монтирования должен быть archive или retrieve")
		return
	}
	if err != nil {
		h.fail(w, "TapeMounted", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetTapesForWriting — GET /api/v1/logical-libraries/{name}/tapes-for-writing.
func (h *APIHandler) GetTapesForWriting(w http.ResponseWriter, r *http.Request) {
	tapes, err := h.cat.Tapes().GetTapesForWriting(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.fail(w, "GetTapesForWriting", err)
		return
	}
	out := make([]TapeForWritingDTO, 0, len(tapes))
	for _, t := range tapes {
		out = append(out, tapeForWritingDTO(t))
	}
	writeJSON(w, http.StatusOK, out)
}
