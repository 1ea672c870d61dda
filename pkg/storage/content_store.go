package storage

import (
	"crypto/md5" //nolint:gosec // content identity, not a security boundary
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// StorageTypeGPG marks originals kept encrypted at rest; their files carry EncryptedSuffix.
const (
	StorageTypeGPG  = "gpg"
	EncryptedSuffix = ".gpg"
)

const maxBaseNameLength = 200

// ContentStore keeps original uploads under content-addressed keys of the form
// "<md5hex>_<basename>". Keys never contain path separators.
type ContentStore struct {
	files *LocalStorage
}

// NewContentStore wraps a LocalStorage rooted at the originals directory.
func NewContentStore(files *LocalStorage) *ContentStore {
	return &ContentStore{files: files}
}

// Key derives the storage key for data uploaded as declaredName.
func Key(checksum, declaredName string) string {
	return checksum + "_" + SanitizeBaseName(declaredName)
}

// Store writes data under its content-addressed key and returns the key. Storing the same
// payload under the same name twice leaves the first file untouched.
func (c *ContentStore) Store(data []byte, declaredName string) (string, error) {
	key := Key(Checksum(data), declaredName)
	exists, err := c.files.Exists(key)
	if err != nil {
		return "", fmt.Errorf("stat original %s: %w", key, err)
	}
	if exists {
		return key, nil
	}
	if err := c.files.WriteAtomic(key, data); err != nil {
		return "", err
	}
	return key, nil
}

// Resolve returns the absolute path of key for the given storage type.
func (c *ContentStore) Resolve(key, storageType string) string {
	if storageType == StorageTypeGPG {
		key += EncryptedSuffix
	}
	return c.files.Path(key)
}

// Open returns a handle to the stored original.
func (c *ContentStore) Open(key, storageType string) (*os.File, error) {
	return c.files.Open(c.Resolve(key, storageType))
}

// Checksum returns the lowercase md5 hex digest of data.
func Checksum(data []byte) string {
	sum := md5.Sum(data) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

// ChecksumFile streams path through md5 and returns the hex digest.
func ChecksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	h := md5.New() //nolint:gosec
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SanitizeBaseName strips directory components and control characters from a client
// supplied filename.
func SanitizeBaseName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(strings.TrimSpace(name))
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || r == '/' {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return "document"
	}
	if len(name) > maxBaseNameLength {
		ext := filepath.Ext(name)
		if len(ext) > 16 {
			ext = ""
		}
		name = strings.ToValidUTF8(name[:maxBaseNameLength-len(ext)], "") + ext
	}
	return name
}
