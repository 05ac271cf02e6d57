package onebot

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Binary payloads travel either as a reference (URL or local path the v11
// implementation can read) or inline as base64:// data. Inline is preferred
// for images and voice clips; everything else falls back to a scoped temp
// file that is removed once the send completed.

const mediaDirName = "onebridge_media"

// cleanupGrace keeps a temp file around briefly after the send returns, in
// case the implementation reads it asynchronously. Tunable, not a contract.
var cleanupGrace = 2 * time.Second

// EncodedFile is a send-ready file reference. Cleanup must be called after
// the send completes; it is safe to call more than once.
type EncodedFile struct {
	Ref  string
	path string
}

// Cleanup removes the backing temp file, if any, after a short grace delay.
func (f *EncodedFile) Cleanup() {
	if f == nil || f.path == "" {
		return
	}
	path := f.path
	f.path = ""
	if cleanupGrace <= 0 {
		os.Remove(path)
		return
	}
	time.AfterFunc(cleanupGrace, func() {
		os.Remove(path)
	})
}

// EncodeFileData encodes raw bytes for sending. Images and voice clips go
// inline as base64://; other kinds (and inline failures) are written to a
// scoped temp file which Cleanup removes on every exit path.
func EncodeFileData(kind string, data []byte, filename string) (*EncodedFile, error) {
	if kind == "image" || kind == "record" {
		return &EncodedFile{
			Ref: "base64://" + base64.StdEncoding.EncodeToString(data),
		}, nil
	}
	return writeTempMedia(data, filename)
}

func writeTempMedia(data []byte, filename string) (*EncodedFile, error) {
	dir := filepath.Join(os.TempDir(), mediaDirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create media temp dir: %w", err)
	}
	if filename == "" {
		filename = "media.bin"
	}
	path := filepath.Join(dir, uuid.NewString()+"_"+filepath.Base(filename))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write media temp file: %w", err)
	}
	return &EncodedFile{Ref: path, path: path}, nil
}
