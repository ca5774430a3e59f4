package handler

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"storagetree/internal/domain"
	"storagetree/internal/logging"
	"storagetree/internal/service"
)

// multipartMemory - сколько формы держим в памяти, остальное уходит во временные файлы
const multipartMemory = 32 << 20

type FileHandler struct {
	treeService   *service.TreeService
	maxUploadSize int64
}

func NewFileHandler(treeService *service.TreeService, maxUploadSize int64) *FileHandler {
	return &FileHandler{
		treeService:   treeService,
		maxUploadSize: maxUploadSize,
	}
}

// UploadFile принимает multipart-форму: file, и либо folder_id, либо folder_name.
// Без обоих полей файл кладется в корень пользователя.
func (h *FileHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if h.maxUploadSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+multipartMemory)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, fmt.Errorf("%w: upload exceeds %d bytes", domain.ErrInvalidArgument, h.maxUploadSize))
			return
		}
		writeError(w, r, fmt.Errorf("%w: invalid multipart form", domain.ErrInvalidArgument))
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: file field is required", domain.ErrInvalidArgument))
		return
	}
	defer file.Close()

	if h.maxUploadSize > 0 && header.Size > h.maxUploadSize {
		writeError(w, r, fmt.Errorf("%w: upload exceeds %d bytes", domain.ErrInvalidArgument, h.maxUploadSize))
		return
	}

	upload := domain.FileUpload{
		OriginalName: header.Filename,
		Size:         header.Size,
		Content:      file,
	}

	folderIDRaw := r.FormValue("folder_id")
	folderName := r.FormValue("folder_name")
	if folderIDRaw != "" && folderName != "" {
		writeError(w, r, fmt.Errorf("%w: folder_id and folder_name are mutually exclusive", domain.ErrInvalidArgument))
		return
	}

	var created *domain.File
	if folderName != "" {
		created, err = h.treeService.UploadFileToFolderName(r.Context(), p, folderName, upload)
	} else {
		upload.FolderID, err = optionalUUID(folderIDRaw)
		if err == nil {
			created, err = h.treeService.UploadFile(r.Context(), p, upload)
		}
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *FileHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	p, id, err := nodeOfKind(r, h.treeService, domain.KindFile)
	if err != nil {
		writeError(w, r, err)
		return
	}

	download, err := h.treeService.OpenFile(r.Context(), p, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer download.Body.Close()

	contentType := download.File.MIMEType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(download.File.SizeBytes, 10))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": download.File.Filename,
	}))
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, download.Body); err != nil {
		// заголовки уже отправлены, остается только записать в лог
		logging.WithContext(r.Context(), nil).Warn("download interrupted",
			zap.String("file_id", id.String()),
			zap.Error(err),
		)
	}
}

func (h *FileHandler) RenameFile(w http.ResponseWriter, r *http.Request) {
	p, id, err := nodeOfKind(r, h.treeService, domain.KindFile)
	if err != nil {
		writeError(w, r, err)
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

func (h *FileHandler) MoveFile(w http.ResponseWriter, r *http.Request) {
	p, id, err := nodeOfKind(r, h.treeService, domain.KindFile)
	if err != nil {
		writeError(w, r, err)
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

func (h *FileHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	p, id, err := nodeOfKind(r, h.treeService, domain.KindFile)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.treeService.DeleteNode(r.Context(), p, id, service.DeleteOptions{}); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
