package staleness

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/zeebo/blake3"
)

// FileState is a snapshot of a source file
type FileState struct {
	Fingerprint string
	Size        int64
	ModTime     time.Time
}

// Fingerprint hashes path with BLAKE3
func Fingerprint(path string) (FileState, error) {
	f, err := os.Open(path)
	if err != nil {
		return FileState{}, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return FileState{}, err
	}
	if info.IsDir() {
		return FileState{}, fmt.Errorf("%s is a directory", path)
	}

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return FileState{}, fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return FileState{
		Fingerprint: hex.EncodeToString(h.Sum(nil)),
		Size:        info.Size(),
		ModTime:     info.ModTime(),
	}, nil
}
