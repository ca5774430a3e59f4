package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"storagetree/internal/domain"
	"storagetree/internal/service"
)

type FolderHandler struct {
	treeService *service.TreeService
}

type createFolderRequest struct {
	Name     string     `json:"name"`
	ParentID *uuid.UUID `json:"parent_id,omitempty"`
}

type renameRequest struct {
	Name string `json:"name"`
}

// moveRequest: destination_id == null - перенос в корень пользователя
type moveRequest struct {
	DestinationID *uuid.UUID `json:"destination_id"`
}

func NewFolderHandler(treeService *service.TreeService) *FolderHandler {
	return &FolderHandler{
		treeService: treeService,
	}
}

func (h *FolderHandler) CreateFolder(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req createFolderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	folder, err := h.treeService.CreateFolder(r.Context(), p, req.ParentID, req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, folder)
}

// GetFolderContent отдает прямых потомков папки, без {id} - корня пользователя
func (h *FolderHandler) GetFolderContent(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var folderID *uuid.UUID
	if chi.URLParam(r, "id") != "" {
		id, err := uuidParam(r, "id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		folderID = &id
	}

	listing, err := h.treeService.ListChildren(r.Context(), p, folderID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, listing)
}

func (h *FolderHandler) RenameFolder(w http.ResponseWriter, r *http.Request) {
	p, id, ok := h.ownFolder(w, r)
	if !ok {
		return
	}

	var req renameRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	node, err := h.treeService.RenameNode(r.Context(), p, id, req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, node)
}

func (h *FolderHandler) MoveFolder(w http.ResponseWriter, r *http.Request) {
	p, id, ok := h.ownFolder(w, r)
	if !ok {
		return
	}

	var req moveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	node, err := h.treeService.MoveNode(r.Context(), p, id, req.DestinationID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, node)
}

// DeleteFolder удаляет папку со всем содержимым; ?strict=true - только пустую
func (h *FolderHandler) DeleteFolder(w http.ResponseWriter, r *http.Request) {
	p, id, ok := h.ownFolder(w, r)
	if !ok {
		return
	}

	var opts service.DeleteOptions
	if raw := r.URL.Query().Get("strict"); raw != "" {
		strict, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid strict flag", domain.ErrInvalidArgument))
			return
		}
		opts.Strict = strict
	}

	if err := h.treeService.DeleteNode(r.Context(), p, id, opts); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ownFolder проверяет, что {id} - папка текущего пользователя
func (h *FolderHandler) ownFolder(w http.ResponseWriter, r *http.Request) (domain.Principal, uuid.UUID, bool) {
	p, id, err := nodeOfKind(r, h.treeService, domain.KindFolder)
	if err != nil {
		writeError(w, r, err)
		return domain.Principal{}, uuid.Nil, false
	}
	return p, id, true
}

// nodeOfKind разбирает {id} и отсекает узлы другого вида: файл по маршруту папок не найден
func nodeOfKind(r *http.Request, tree *service.TreeService, kind domain.NodeKind) (domain.Principal, uuid.UUID, error) {
	p, err := principal(r)
	if err != nil {
		return domain.Principal{}, uuid.Nil, err
	}
	id, err := uuidParam(r, "id")
	if err != nil {
		return domain.Principal{}, uuid.Nil, err
	}
	node, err := tree.GetNode(r.Context(), p, id)
	if err != nil {
		return domain.Principal{}, uuid.Nil, err
	}
	if node.NodeKind() != kind {
		return domain.Principal{}, uuid.Nil, fmt.Errorf("%w: %s %s", domain.ErrNotFound, kind, id)
	}
	return p, id, nil
}
