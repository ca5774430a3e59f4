package domain

import "github.com/google/uuid"

type NodeKind string

const (
	KindFolder NodeKind = "folder"
	KindFile   NodeKind = "file"
)

// Node - узел дерева: папка или файл
type Node interface {
	NodeID() uuid.UUID
	NodeKind() NodeKind
	NodeName() string
	NodePath() string
	NodeOwner() uuid.UUID
	NodeParent() *uuid.UUID
}
