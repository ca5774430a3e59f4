package kvstore

import (
	"github.com/google/uuid"
)

// Пространства ключей:
//
//	u:<userID>                        пользователь (JSON)
//	un:<username>                     userID, уникальность логина
//	n:<nodeID>                        папка или файл (JSON с полем kind)
//	p:<ownerID>:<path>                nodeID, уникальность (owner, path)
//	c:<ownerID>:<parentID|root>:<id>  прямые потомки папки
//	o:<ownerID>:<nodeID>              все узлы владельца
const (
	prefixUser     = "u:"
	prefixUsername = "un:"
	prefixNode     = "n:"
	prefixPath     = "p:"
	prefixChild    = "c:"
	prefixOwned    = "o:"

	rootSegment = "root"
)

func keyUser(id uuid.UUID) []byte {
	return []byte(prefixUser + id.String())
}

func keyUsername(username string) []byte {
	return []byte(prefixUsername + username)
}

func keyNode(id uuid.UUID) []byte {
	return []byte(prefixNode + id.String())
}

func keyPath(ownerID uuid.UUID, path string) []byte {
	return []byte(prefixPath + ownerID.String() + ":" + path)
}

func keyChildPrefix(ownerID uuid.UUID, parentID *uuid.UUID) []byte {
	parent := rootSegment
	if parentID != nil {
		parent = parentID.String()
	}
	return []byte(prefixChild + ownerID.String() + ":" + parent + ":")
}

func keyChild(ownerID uuid.UUID, parentID *uuid.UUID, id uuid.UUID) []byte {
	return append(keyChildPrefix(ownerID, parentID), id.String()...)
}

func keyOwnedPrefix(ownerID uuid.UUID) []byte {
	return []byte(prefixOwned + ownerID.String() + ":")
}

func keyOwned(ownerID, id uuid.UUID) []byte {
	return append(keyOwnedPrefix(ownerID), id.String()...)
}
