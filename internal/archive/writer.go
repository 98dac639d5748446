package archive

import (
	"fmt"
	"os"
	"path/filepath"
)

// Filename builds the content-addressed file name for a raw message:
// {fingerprint}-{externalID}.eml
func Filename(raw []byte, externalID string) string {
	return fmt.Sprintf("%s-%s.eml", Fingerprint(raw), externalID)
}

// WriteMessage writes a raw message into dir under its content-addressed
// name, creating directories on demand. A file that already exists is never
// rewritten; the message is treated as already archived and created is false.
// The file's modification time is set to the derived received timestamp
// (best-effort; a failure there is not an error).
func WriteMessage(dir, externalID string, raw []byte) (path string, created bool, err error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", false, err
	}

	path = filepath.Join(dir, Filename(raw, externalID))
	if _, err := os.Stat(path); err == nil {
		return path, false, nil
	}

	if err := os.WriteFile(path, raw, 0644); err != nil {
		return "", false, err
	}

	ts := DeriveTimestamp(raw)
	// May fail on restricted filesystems; the archive copy is still valid
	_ = os.Chtimes(path, ts, ts)

	return path, true, nil
}
