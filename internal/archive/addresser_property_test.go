package archive

import (
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var hexRe = regexp.MustCompile(`^[0-9a-f]{16}$`)

// Property: the fingerprint is a pure function of the raw bytes — two
// computations over identical content always agree, and the output is
// always 16 lowercase hex characters.
func TestProperty_FingerprintDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("fingerprint_is_deterministic", prop.ForAll(
		func(content []byte) bool {
			first := Fingerprint(content)
			second := Fingerprint(content)
			return first == second && hexRe.MatchString(first)
		},
		gen.SliceOf(gen.UInt8()),
	))

	properties.Property("different_content_differs", prop.ForAll(
		func(content []byte) bool {
			modified := append(append([]byte{}, content...), 0x42)
			return Fingerprint(content) != Fingerprint(modified)
		},
		gen.SliceOf(gen.UInt8()),
	))

	properties.TestingRun(t)
}

// Property: deriving a timestamp never fails, whatever bytes come in.
// Inputs without a parseable Date land within tolerance of the current time.
func TestProperty_TimestampNeverFails(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("timestamp_is_always_produced", prop.ForAll(
		func(content []byte) bool {
			ts := DeriveTimestamp(content)
			return !ts.IsZero()
		},
		gen.SliceOf(gen.UInt8()),
	))

	properties.TestingRun(t)
}

func TestDeriveTimestamp(t *testing.T) {
	t.Run("valid date header", func(t *testing.T) {
		raw := []byte("From: a@example.com\r\nDate: Mon, 02 Jan 2006 15:04:05 -0700\r\nSubject: hi\r\n\r\nbody\r\n")
		ts := DeriveTimestamp(raw)
		want := time.Date(2006, 1, 2, 22, 4, 5, 0, time.UTC)
		if !ts.Equal(want) {
			t.Errorf("DeriveTimestamp = %v, want %v", ts, want)
		}
	})

	t.Run("non-standard date layout", func(t *testing.T) {
		raw := []byte("Date: 2 Jan 2006 15:04:05 -0700\r\n\r\nbody\r\n")
		ts := DeriveTimestamp(raw)
		want := time.Date(2006, 1, 2, 22, 4, 5, 0, time.UTC)
		if !ts.Equal(want) {
			t.Errorf("DeriveTimestamp = %v, want %v", ts, want)
		}
	})

	t.Run("missing date falls back to now", func(t *testing.T) {
		raw := []byte("From: a@example.com\r\nSubject: no date\r\n\r\nbody\r\n")
		before := time.Now().UTC()
		ts := DeriveTimestamp(raw)
		after := time.Now().UTC()
		if ts.Before(before.Add(-time.Second)) || ts.After(after.Add(time.Second)) {
			t.Errorf("DeriveTimestamp = %v, want close to now (%v..%v)", ts, before, after)
		}
	})

	t.Run("garbage date falls back to now", func(t *testing.T) {
		raw := []byte("Date: not a date at all\r\n\r\nbody\r\n")
		before := time.Now().UTC()
		ts := DeriveTimestamp(raw)
		if ts.Before(before.Add(-time.Second)) {
			t.Errorf("DeriveTimestamp = %v, want close to now", ts)
		}
	})

	t.Run("received header fallback", func(t *testing.T) {
		raw := []byte("Received: from mx.example.com by mail.example.com; Mon, 02 Jan 2006 15:04:05 -0700\r\nSubject: x\r\n\r\nbody\r\n")
		ts := DeriveTimestamp(raw)
		want := time.Date(2006, 1, 2, 22, 4, 5, 0, time.UTC)
		if !ts.Equal(want) {
			t.Errorf("DeriveTimestamp = %v, want %v", ts, want)
		}
	})
}

func TestFingerprint(t *testing.T) {
	// Known SHA-256 prefix of "hello"
	got := Fingerprint([]byte("hello"))
	want := "2cf24dba5fb0a30e"
	if got != want {
		t.Errorf("Fingerprint(hello) = %q, want %q", got, want)
	}

	if len(Fingerprint(nil)) != FingerprintLength {
		t.Errorf("Fingerprint(nil) length = %d, want %d", len(Fingerprint(nil)), FingerprintLength)
	}
}

func TestFilename(t *testing.T) {
	raw := []byte("hello")
	got := Filename(raw, "42")
	want := fmt.Sprintf("%s-42.eml", Fingerprint(raw))
	if got != want {
		t.Errorf("Filename = %q, want %q", got, want)
	}
}
