package service

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"storagetree/internal/domain"
	"storagetree/internal/metrics"
	"storagetree/internal/paths"
	"storagetree/internal/repository"
)

// sniffLen - сколько байт смотрит mimetype при определении типа
const sniffLen = 3072

// UploadFile сохраняет файл в папку upload.FolderID (nil - корень).
// При совпадении имени файл получает имя "name (n).ext", существующий не перезаписывается.
func (s *TreeService) UploadFile(ctx context.Context, p domain.Principal, upload domain.FileUpload) (file *domain.File, err error) {
	defer func(start time.Time) { metrics.ObserveMutation(opUploadFile, start, err) }(time.Now())

	unlock := s.locks.Lock(p.ID)
	defer unlock()

	if upload.Size < 0 {
		return nil, fmt.Errorf("%w: negative file size", domain.ErrInvalidArgument)
	}
	if upload.Content == nil {
		return nil, fmt.Errorf("%w: empty content", domain.ErrInvalidArgument)
	}
	if err := paths.ValidateName(upload.OriginalName); err != nil {
		return nil, err
	}
	root, err := paths.UserRoot(p.Username)
	if err != nil {
		return nil, err
	}
	dir, err := s.parentPath(ctx, p, upload.FolderID)
	if err != nil {
		return nil, err
	}
	if err := s.quota.Reserve(ctx, p.ID, upload.Size); err != nil {
		return nil, err
	}
	filename, path, err := s.freeName(ctx, p.ID, root, dir, upload.OriginalName)
	if err != nil {
		return nil, err
	}

	content, mimeType := sniffMIME(upload.Content)
	written, err := s.fs.WriteFile(ctx, path, content, upload.Size)
	if err != nil {
		return nil, physicalError(err)
	}

	ctx = context.WithoutCancel(ctx)
	file = &domain.File{
		ID:           uuid.New(),
		Filename:     filename,
		OriginalName: upload.OriginalName,
		Path:         path,
		SizeBytes:    written,
		MIMEType:     mimeType,
		OwnerID:      p.ID,
		FolderID:     upload.FolderID,
	}
	removeWritten := func(ctx context.Context) error { return s.fs.RemoveFile(ctx, path) }

	err = s.store.InTx(ctx, func(tx repository.Store) error {
		if err := tx.CreateFile(ctx, file); err != nil {
			return err
		}
		_, err := s.quota.Commit(ctx, tx, p.ID, written)
		return err
	})
	if err != nil {
		compensated := s.compensate(ctx, opUploadFile, file.ID, "", path, removeWritten)
		if compensated && errors.Is(err, domain.ErrInsufficientQuota) {
			return nil, err
		}
		return nil, s.internalError(opUploadFile, file.ID, "", path, err)
	}

	metrics.RecordUpload(written)
	return file, nil
}

// UploadFileToFolderName - альтернативный режим: папка назначения ищется по имени.
// Пустое имя означает корень, несколько папок с таким именем - конфликт.
func (s *TreeService) UploadFileToFolderName(ctx context.Context, p domain.Principal, folderName string, upload domain.FileUpload) (*domain.File, error) {
	upload.FolderID = nil
	if folderName != "" {
		folders, err := s.store.FindFoldersByName(ctx, p.ID, folderName)
		if err != nil {
			return nil, err
		}
		switch len(folders) {
		case 0:
			return nil, fmt.Errorf("%w: folder %q", domain.ErrNotFound, folderName)
		case 1:
			upload.FolderID = &folders[0].ID
		default:
			return nil, fmt.Errorf("%w: %d folders named %q", domain.ErrConflict, len(folders), folderName)
		}
	}
	return s.UploadFile(ctx, p, upload)
}

// freeName подбирает свободное имя линейным перебором: name.ext, name (1).ext, name (2).ext...
func (s *TreeService) freeName(ctx context.Context, ownerID uuid.UUID, root, dir, original string) (string, string, error) {
	candidate := original
	for n := 1; ; n++ {
		path, err := paths.Resolve(root, dir, candidate)
		if err != nil {
			return "", "", err
		}
		taken, err := s.pathTaken(ctx, ownerID, path)
		if err != nil {
			return "", "", err
		}
		if !taken {
			return candidate, path, nil
		}
		candidate = paths.Numbered(original, n)
	}
}

// sniffMIME определяет тип по первым байтам, не теряя их для записи
func sniffMIME(r io.Reader) (io.Reader, string) {
	br := bufio.NewReaderSize(r, sniffLen)
	head, _ := br.Peek(sniffLen)
	return br, mimetype.Detect(head).String()
}
