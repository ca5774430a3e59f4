package domain

import (
	"io"
	"time"

	"github.com/google/uuid"
)

type File struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	Filename     string     `json:"filename" db:"filename"`           // имя на диске, может отличаться от исходного
	OriginalName string     `json:"original_name" db:"original_name"` // имя, с которым файл был загружен
	Path         string     `json:"path" db:"path"`
	SizeBytes    int64      `json:"size_bytes" db:"size_bytes"`
	MIMEType     string     `json:"mime_type" db:"mime_type"`
	OwnerID      uuid.UUID  `json:"owner_id" db:"owner_id"`
	FolderID     *uuid.UUID `json:"folder_id,omitempty" db:"folder_id"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

func (f *File) NodeID() uuid.UUID      { return f.ID }
func (f *File) NodeKind() NodeKind     { return KindFile }
func (f *File) NodeName() string       { return f.Filename }
func (f *File) NodePath() string       { return f.Path }
func (f *File) NodeOwner() uuid.UUID   { return f.OwnerID }
func (f *File) NodeParent() *uuid.UUID { return f.FolderID }

// FileUpload описывает загрузку одного файла
type FileUpload struct {
	FolderID     *uuid.UUID
	OriginalName string
	Size         int64
	Content      io.Reader
}

type FileDownload struct {
	File *File
	Body io.ReadCloser
}
