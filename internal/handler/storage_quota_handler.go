package handler

import (
	"net/http"

	"storagetree/internal/service"
)

type StorageQuotaHandler struct {
	quotaService *service.StorageQuotaService
}

type diskSpaceRequest struct {
	DiskSpace int64 `json:"disk_space"`
}

func NewStorageQuotaHandler(quotaService *service.StorageQuotaService) *StorageQuotaHandler {
	return &StorageQuotaHandler{
		quotaService: quotaService,
	}
}

func (h *StorageQuotaHandler) GetQuotaInfo(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	quotaInfo, err := h.quotaService.GetQuotaInfo(r.Context(), p.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, quotaInfo)
}

// UpdateDiskSpace - эндпоинт администратора для изменения квоты пользователя
func (h *StorageQuotaHandler) UpdateDiskSpace(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	userID, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req diskSpaceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := h.quotaService.SetLimit(r.Context(), p, userID, req.DiskSpace)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// Recalculate пересчитывает занятое место по сумме размеров файлов
func (h *StorageQuotaHandler) Recalculate(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	userID, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	user, err := h.quotaService.Recalculate(r.Context(), p, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}
