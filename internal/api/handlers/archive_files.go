// archive_files.go — обработчики архивных файлов, записанных копий
// и журнала удалённых копий.
package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/goartstore/tape-catalogue/internal/api/errors"
	"github.com/bigkaa/goartstore/tape-catalogue/internal/api/middleware"
	"github.com/bigkaa/goartstore/tape-catalogue/internal/domain/model"
)

// FilesWrittenToTape — POST /api/v1/tape-files/written.
// Пачка должна относиться к одной ленте и идти без пропусков fSeq.
func (h *APIHandler) FilesWrittenToTape(w http.ResponseWriter, r *http.Request) {
	var req FilesWrittenRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Files) == 0 {
		apierrors.ValidationError(w, "Пустая пачка записанных файлов")
		return
	}
	if err := h.cat.TapeFiles().FilesWrittenToTape(r.Context(), req.model()); err != nil {
		h.fail(w, "FilesWrittenToTape", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// archiveFileSearchCriteria привязывает query-параметры GET /api/v1/archive-files.
func archiveFileSearchCriteria(w http.ResponseWriter, r *http.Request) (model.ArchiveFileSearchCriteria, bool) {
	var c model.ArchiveFileSearchCriteria
	ok := bindQuery(w, r,
		queryParam{"archive_file_id", &c.ArchiveFileID},
		queryParam{"disk_instance", &c.DiskInstance},
		queryParam{"disk_file_id", &c.DiskFileIDs},
		queryParam{"vid", &c.VID},
		queryParam{"fseq", &c.FSeq},
		queryParam{"copy_nb", &c.CopyNb},
	)
	return c, ok
}

// GetArchiveFiles — GET /api/v1/archive-files, потоковая выдача.
func (h *APIHandler) GetArchiveFiles(w http.ResponseWriter, r *http.Request) {
	criteria, ok := archiveFileSearchCriteria(w, r)
	if !ok {
		return
	}
	it, err := h.cat.ArchiveFiles().GetArchiveFilesItor(r.Context(), criteria)
	if err != nil {
		h.fail(w, "GetArchiveFilesItor", err)
		return
	}
	defer it.Close()

	streamJSONArray(h, w, "GetArchiveFilesItor", it.Next,
		func() ArchiveFileDTO { return archiveFileDTO(it.ArchiveFile()) }, it.Err)
}

// GetArchiveFile — GET /api/v1/archive-files/{id}.
func (h *APIHandler) GetArchiveFile(w http.ResponseWriter, r *http.Request) {
	id, ok := archiveFileIDParam(w, r)
	if !ok {
		return
	}
	f, err := h.cat.ArchiveFiles().GetArchiveFileByID(r.Context(), id)
	if err != nil {
		h.fail(w, "GetArchiveFileByID", err)
		return
	}
	writeJSON(w, http.StatusOK, archiveFileDTO(f))
}

// DeleteArchiveFile — DELETE /api/v1/archive-files/{id}?disk_instance=...
// Удаление без журнала удалённых копий.
func (h *APIHandler) DeleteArchiveFile(w http.ResponseWriter, r *http.Request) {
	id, ok := archiveFileIDParam(w, r)
	if !ok {
		return
	}
	diskInstance := r.URL.Query().Get("disk_instance")
	if diskInstance == "" {
		apierrors.ValidationError(w, "Не задан disk_instance")
		return
	}
	if err := h.cat.ArchiveFiles().DeleteArchiveFile(r.Context(), diskInstance, id); err != nil {
		h.fail(w, "DeleteArchiveFile", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RecycleArchiveFile — POST /api/v1/archive-files/{id}/recycle.
func (h *APIHandler) RecycleArchiveFile(w http.ResponseWriter, r *http.Request) {
	id, ok := archiveFileIDParam(w, r)
	if !ok {
		return
	}
	var req RecycleArchiveFileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.cat.ArchiveFiles().MoveArchiveFileToRecycleLog(r.Context(), req.model(id)); err != nil {
		h.fail(w, "MoveArchiveFileToRecycleLog", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PrepareToRetrieveFile — POST /api/v1/archive-files/{id}/retrieve-criteria.
func (h *APIHandler) PrepareToRetrieveFile(w http.ResponseWriter, r *http.Request) {
	id, ok := archiveFileIDParam(w, r)
	if !ok {
		return
	}
	var req RetrieveCriteriaRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	criteria, err := h.cat.TapeFiles().PrepareToRetrieveFile(r.Context(), req.DiskInstance, id,
		req.Requester.model(), req.Activity, req.MountPolicy)
	if err != nil {
		h.fail(w, "PrepareToRetrieveFile", err)
		return
	}
	writeJSON(w, http.StatusOK, retrieveCriteriaDTO(criteria))
}

// UpdateDiskFileID — PUT /api/v1/archive-files/{id}/disk-file-id.
func (h *APIHandler) UpdateDiskFileID(w http.ResponseWriter, r *http.Request) {
	id, ok := archiveFileIDParam(w, r)
	if !ok {
		return
	}
	var req UpdateDiskFileIDRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.cat.ArchiveFiles().UpdateDiskFileID(r.Context(), id, req.DiskInstance, req.DiskFileID); err != nil {
		h.fail(w, "UpdateDiskFileID", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteTapeFileCopy — DELETE /api/v1/archive-files/{id}/copies/{copy_nb}?reason=...
func (h *APIHandler) DeleteTapeFileCopy(w http.ResponseWriter, r *http.Request) {
	id, ok := archiveFileIDParam(w, r)
	if !ok {
		return
	}
	raw := chi.URLParam(r, "copy_nb")
	copyNb, err := strconv.ParseUint(raw, 10, 8)
	if err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Некорректный номер копии: %q", raw))
		return
	}
	err = h.cat.TapeFiles().DeleteTapeFileCopy(r.Context(), id, uint8(copyNb), r.URL.Query().Get("reason"))
	if err != nil {
		h.fail(w, "DeleteTapeFileCopy", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// NextArchiveFileID — POST /api/v1/archive-files/next-id.
func (h *APIHandler) NextArchiveFileID(w http.ResponseWriter, r *http.Request) {
	var req NextArchiveFileIDRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id, err := h.cat.ArchiveFiles().CheckAndGetNextArchiveFileID(r.Context(), req.DiskInstance,
		req.StorageClass, req.Requester.model())
	if err != nil {
		h.fail(w, "CheckAndGetNextArchiveFileID", err)
		return
	}
	writeJSON(w, http.StatusOK, NextArchiveFileIDResponse{ArchiveFileID: id})
}

// --- Журнал удалённых копий ---

// recycleSearchCriteria привязывает query-параметры /api/v1/recycle-log.
func recycleSearchCriteria(w http.ResponseWriter, r *http.Request) (model.RecycleTapeFileSearchCriteria, bool) {
	var c model.RecycleTapeFileSearchCriteria
	ok := bindQuery(w, r,
		queryParam{"vid", &c.VID},
		queryParam{"disk_file_id", &c.DiskFileIDs},
		queryParam{"archive_file_id", &c.ArchiveFileID},
		queryParam{"disk_instance", &c.DiskInstance},
		queryParam{"copy_nb", &c.CopyNb},
		queryParam{"recycle_log_time_min", &c.RecycleLogTimeMin},
		queryParam{"recycle_log_time_max", &c.RecycleLogTimeMax},
	)
	return c, ok
}

// GetRecycleLog — GET /api/v1/recycle-log, потоковая выдача.
func (h *APIHandler) GetRecycleLog(w http.ResponseWriter, r *http.Request) {
	criteria, ok := recycleSearchCriteria(w, r)
	if !ok {
		return
	}
	it, err := h.cat.FileRecycleLog().GetFileRecycleLogItor(r.Context(), criteria)
	if err != nil {
		h.fail(w, "GetFileRecycleLogItor", err)
		return
	}
	defer it.Close()

	streamJSONArray(h, w, "GetFileRecycleLogItor", it.Next,
		func() RecycleLogDTO { return recycleLogDTO(it.Entry()) }, it.Err)
}

// RestoreRecycledFile — POST /api/v1/recycle-log/restore.
func (h *APIHandler) RestoreRecycledFile(w http.ResponseWriter, r *http.Request) {
	var req RestoreRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.cat.FileRecycleLog().RestoreFileInRecycleLog(r.Context(), req.criteria(), req.NewDiskFileID); err != nil {
		h.fail(w, "RestoreFileInRecycleLog", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteRecycledFile — DELETE /api/v1/recycle-log: окончательное удаление
// единственной записи, найденной по критериям.
func (h *APIHandler) DeleteRecycledFile(w http.ResponseWriter, r *http.Request) {
	criteria, ok := recycleSearchCriteria(w, r)
	if !ok {
		return
	}
	if err := h.cat.FileRecycleLog().DeleteFileFromRecycleLog(r.Context(), middleware.IdentityFromRequest(r), criteria); err != nil {
		h.fail(w, "DeleteFileFromRecycleLog", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
