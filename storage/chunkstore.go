package storage

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v4"

	"github.com/swapmybytes/backend/httperr"
)

// ChunkStore keeps in-flight upload chunks under a per-session temp
// directory. Sessions are server-issued, so two clients uploading files with
// the same name cannot clobber each other's chunk sets.
type ChunkStore struct {
	tempDir string
	log     *slog.Logger
}

func NewChunkStore(tempDir string, log *slog.Logger) (*ChunkStore, error) {
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return nil, httperr.IO(err, "could not create temp directory")
	}
	return &ChunkStore{tempDir: tempDir, log: log}, nil
}

// NewSession mints a session ID and creates its directory.
func (s *ChunkStore) NewSession() (string, error) {
	id := shortuuid.New()
	if err := os.Mkdir(s.sessionDir(id), 0o755); err != nil {
		return "", httperr.IO(err, "could not create upload session")
	}
	return id, nil
}

func (s *ChunkStore) sessionDir(session string) string {
	return filepath.Join(s.tempDir, session)
}

func (s *ChunkStore) chunkPath(session, uploadName string, index int) string {
	return filepath.Join(s.sessionDir(session), fmt.Sprintf("%s-chunk-%d", uploadName, index))
}

// StoreChunk writes one chunk. The bytes land under a temporary name and are
// renamed into place, so a chunk file that exists is always fully written.
// Re-sending an index overwrites the previous copy (last write wins).
func (s *ChunkStore) StoreChunk(session, uploadName string, index, total int, src io.Reader) error {
	switch {
	case session == "":
		return httperr.Validation("Missing metadata field: uploadSession")
	case uploadName == "" || uploadName != filepath.Base(uploadName):
		return httperr.Validation("Missing or malformed metadata field: originalName")
	case total < 1:
		return httperr.Validation("Missing or malformed metadata field: totalChunks")
	case index < 0 || index >= total:
		return httperr.Validation("Missing or malformed metadata field: chunkIndex")
	}

	dir := s.sessionDir(session)
	if _, err := os.Stat(dir); err != nil {
		return httperr.NotFound("Upload session not found")
	}

	tmp, err := os.CreateTemp(dir, ".chunk-*")
	if err != nil {
		return httperr.IO(err, "could not store chunk %d", index)
	}
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return httperr.IO(err, "could not store chunk %d", index)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return httperr.IO(err, "could not store chunk %d", index)
	}
	if err := os.Rename(tmp.Name(), s.chunkPath(session, uploadName, index)); err != nil {
		os.Remove(tmp.Name())
		return httperr.IO(err, "could not store chunk %d", index)
	}

	s.log.Info("chunk stored", "session", session, "name", uploadName, "index", index, "total", total)
	return nil
}

// Missing scans indices in order and reports the first absent chunk.
// An incomplete set is a normal state here, not an error.
func (s *ChunkStore) Missing(session, uploadName string, total int) (index int, missing bool) {
	for i := 0; i < total; i++ {
		if _, err := os.Stat(s.chunkPath(session, uploadName, i)); err != nil {
			return i, true
		}
	}
	return 0, false
}

// Merge concatenates chunks 0..total-1 into a new artifact in finalDir,
// deleting each chunk as soon as it has been consumed. The output is
// assembled at a staging path and renamed into place only on full success, so
// no reader can ever observe a partial artifact. The session directory is
// removed afterwards.
//
// An absent chunk found up front is a ValidationError carrying the exact
// index and path; a chunk that vanishes mid-merge is an IOError.
func (s *ChunkStore) Merge(session, uploadName string, total int, finalDir string) (string, error) {
	if uploadName == "" || uploadName != filepath.Base(uploadName) {
		return "", httperr.Validation("Missing or malformed metadata field: originalName")
	}
	if total < 1 {
		return "", httperr.Validation("Missing or malformed metadata field: totalChunks")
	}
	if i, missing := s.Missing(session, uploadName, total); missing {
		return "", httperr.Validation("Chunk %d is missing: %s", i, s.chunkPath(session, uploadName, i))
	}

	finalPath := filepath.Join(finalDir, uuid.New().String()+"_"+uploadName)
	staging := finalPath + ".partial"

	out, err := os.Create(staging)
	if err != nil {
		return "", httperr.IO(err, "could not create merged file")
	}

	for i := 0; i < total; i++ {
		chunkPath := s.chunkPath(session, uploadName, i)
		in, err := os.Open(chunkPath)
		if err != nil {
			out.Close()
			os.Remove(staging)
			return "", httperr.IO(err, "Chunk %d is missing: %s", i, chunkPath)
		}
		_, err = io.Copy(out, in)
		in.Close()
		if err != nil {
			out.Close()
			os.Remove(staging)
			return "", httperr.IO(err, "could not merge chunk %d", i)
		}
		os.Remove(chunkPath)
	}

	if err := out.Close(); err != nil {
		os.Remove(staging)
		return "", httperr.IO(err, "could not finish merged file")
	}
	if err := os.Rename(staging, finalPath); err != nil {
		os.Remove(staging)
		return "", httperr.IO(err, "could not finish merged file")
	}

	os.RemoveAll(s.sessionDir(session))
	s.log.Info("chunks merged", "session", session, "name", uploadName, "total", total, "path", finalPath)
	return finalPath, nil
}

// SweepStale removes session directories untouched for longer than maxAge.
// A chunk set whose merge never came would otherwise leak until reboot.
func (s *ChunkStore) SweepStale(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.tempDir)
	if err != nil {
		return 0, httperr.IO(err, "could not scan temp directory")
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.tempDir, e.Name())); err != nil {
			s.log.Warn("could not remove stale session", "session", e.Name(), "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}
