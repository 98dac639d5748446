// Package archive implements the content-addressed mail file store:
// message fingerprinting, received-time derivation, folder path mapping,
// and no-overwrite .eml writes.
package archive

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"net/mail"
	"strings"
	"time"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
)

// FingerprintLength is the number of hex characters kept from the SHA-256 sum
const FingerprintLength = 16

// Fingerprint returns a short stable identifier for raw message content:
// the first 16 hex characters of its SHA-256 hash.
func Fingerprint(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])[:FingerprintLength]
}

// DeriveTimestamp extracts the received time of a raw message from its Date
// header. Messages with a missing or unparseable Date fall back to the first
// Received header, and finally to the current time. It never fails.
func DeriveTimestamp(raw []byte) time.Time {
	if t := headerDate(raw); !t.IsZero() {
		return t.UTC()
	}
	return time.Now().UTC()
}

func headerDate(raw []byte) time.Time {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return time.Time{}
	}

	dateStr := sanitizeHeader(entity.Header.Get("Date"))
	if dateStr != "" {
		if t, err := mail.ParseDate(dateStr); err == nil {
			return t
		}
		if t := parseDateFuzzy(dateStr); !t.IsZero() {
			return t
		}
	}

	return parseReceivedDate(entity.Header.Get("Received"))
}

// sanitizeHeader unfolds a header value into a single trimmed line
func sanitizeHeader(val string) string {
	val = strings.ReplaceAll(val, "\n", " ")
	val = strings.ReplaceAll(val, "\r", "")
	return strings.TrimSpace(val)
}

// fuzzyDateLayouts covers non-standard Date headers seen in the wild
var fuzzyDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700 (MST)",
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05",
	"2 Jan 2006 15:04:05 -0700",
	"2 Jan 2006 15:04:05",
	time.RFC822Z,
	time.RFC822,
}

func parseDateFuzzy(raw string) time.Time {
	for _, layout := range fuzzyDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}

// parseReceivedDate extracts the date stamp that follows the last ";" of a
// Received header
func parseReceivedDate(received string) time.Time {
	idx := strings.LastIndex(received, ";")
	if idx < 0 {
		return time.Time{}
	}
	dateStr := sanitizeHeader(received[idx+1:])
	if dateStr == "" {
		return time.Time{}
	}
	if t, err := mail.ParseDate(dateStr); err == nil {
		return t
	}
	return parseDateFuzzy(dateStr)
}
