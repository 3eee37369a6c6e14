package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"

	"github.com/swapmybytes/backend/httperr"
)

// HashFile returns the hex sha256 digest of the file's contents, streaming so
// large uploads never sit in memory. A failure here is fatal to the upload.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", httperr.IO(err, "could not hash file")
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", httperr.IO(err, "could not hash file")
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
