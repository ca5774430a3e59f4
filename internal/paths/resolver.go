// Package paths строит абсолютные пути узлов внутри корня пользователя.
// Все функции чистые: без обращения к диску и к базе.
package paths

import (
	"fmt"
	"path"
	"strings"

	"storagetree/internal/domain"
)

const maxNameLength = 255

// ValidateName проверяет имя одного сегмента пути
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: name is empty", domain.ErrInvalidName)
	case name == "." || name == "..":
		return fmt.Errorf("%w: %q is reserved", domain.ErrInvalidName, name)
	case len(name) > maxNameLength:
		return fmt.Errorf("%w: name longer than %d bytes", domain.ErrInvalidName, maxNameLength)
	case strings.ContainsAny(name, "/\\\x00"):
		return fmt.Errorf("%w: %q contains a path separator", domain.ErrInvalidName, name)
	}
	return nil
}

// Resolve возвращает путь узла name внутри parentPath.
// Пустой parentPath означает корень пользователя ownerRoot.
func Resolve(ownerRoot, parentPath, name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	root, err := cleanRoot(ownerRoot)
	if err != nil {
		return "", err
	}

	base := root
	if parentPath != "" {
		base = path.Clean(parentPath)
		if base != root && !IsWithin(base, root) {
			return "", fmt.Errorf("%w: parent %q is outside of %q", domain.ErrInvalidArgument, parentPath, root)
		}
	}

	if base == "/" {
		return "/" + name, nil
	}
	return base + "/" + name, nil
}

// IsWithin сообщает, что p лежит строго внутри root
func IsWithin(p, root string) bool {
	if root == "/" {
		return p != "/" && strings.HasPrefix(p, "/")
	}
	return strings.HasPrefix(p, root+"/")
}

// Rebase переносит p из-под oldPrefix под newPrefix.
// Используется при каскадном обновлении путей потомков.
func Rebase(p, oldPrefix, newPrefix string) (string, error) {
	if p == oldPrefix {
		return newPrefix, nil
	}
	if !IsWithin(p, oldPrefix) {
		return "", fmt.Errorf("%w: %q is not under %q", domain.ErrInvalidArgument, p, oldPrefix)
	}
	return newPrefix + strings.TrimPrefix(p, oldPrefix), nil
}

// Dir - путь родителя
func Dir(p string) string {
	return path.Dir(p)
}

// SplitExt делит имя на основу и расширение: "a.tar.gz" -> "a.tar", ".gz".
// Имя из одного расширения (".bashrc") расширением не считается.
func SplitExt(name string) (string, string) {
	ext := path.Ext(name)
	if ext == name {
		return name, ""
	}
	return strings.TrimSuffix(name, ext), ext
}

// Numbered строит имя-кандидат при коллизии: "name (n).ext"
func Numbered(name string, n int) string {
	base, ext := SplitExt(name)
	return fmt.Sprintf("%s (%d)%s", base, n, ext)
}

// UserRoot - корень хранилища пользователя
func UserRoot(username string) (string, error) {
	if err := ValidateName(username); err != nil {
		return "", err
	}
	return "/" + username, nil
}

func cleanRoot(root string) (string, error) {
	if root == "" || !strings.HasPrefix(root, "/") {
		return "", fmt.Errorf("%w: owner root %q must be absolute", domain.ErrInvalidArgument, root)
	}
	return path.Clean(root), nil
}
