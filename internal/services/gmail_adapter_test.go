package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mailkeep/core/internal/config"
	"github.com/mailkeep/core/internal/syncstate"
)

// fakeGmailSession serves canned messages and paginates id listings
type fakeGmailSession struct {
	labels   map[string][]string // label -> message ids
	messages map[string][]byte
	pageSize int
	getCalls int
}

func (f *fakeGmailSession) ListMessageIDs(labelID, pageToken string) ([]string, string, error) {
	ids, ok := f.labels[labelID]
	if !ok {
		return nil, "", fmt.Errorf("label not found: %s", labelID)
	}

	start := 0
	if pageToken != "" {
		fmt.Sscanf(pageToken, "%d", &start)
	}
	size := f.pageSize
	if size == 0 {
		size = len(ids)
	}

	end := start + size
	next := ""
	if end >= len(ids) {
		end = len(ids)
	} else {
		next = fmt.Sprintf("%d", end)
	}
	return ids[start:end], next, nil
}

func (f *fakeGmailSession) GetRaw(id string) ([]byte, time.Time, error) {
	f.getCalls++
	raw, ok := f.messages[id]
	if !ok {
		return nil, time.Time{}, fmt.Errorf("message not found: %s", id)
	}
	return raw, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), nil
}

func newTestGmailAdapter(t *testing.T, sess *fakeGmailSession, labels []string) (*GmailAdapter, string) {
	t.Helper()
	dir := t.TempDir()
	a := &GmailAdapter{
		acct: &config.Account{
			Name:   "test-gmail",
			Type:   config.KindGmailAPI,
			Labels: labels,
		},
		store:   syncstate.NewStore(dir),
		connect: func(ctx context.Context) (gmailSession, error) { return sess, nil },
	}
	return a, dir
}

func TestGmailAdapterSync(t *testing.T) {
	sess := &fakeGmailSession{
		labels: map[string][]string{
			"INBOX": {"msg-a", "msg-b", "msg-c"},
			"SENT":  {"msg-d"},
		},
		messages: map[string][]byte{
			"msg-a": rawMessage("a"),
			"msg-b": rawMessage("b"),
			"msg-c": rawMessage("c"),
			"msg-d": rawMessage("d"),
		},
		pageSize: 2, // forces pagination on the inbox listing
	}
	a, dir := newTestGmailAdapter(t, sess, []string{"INBOX", "SENT"})

	count, err := a.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if count != 4 {
		t.Errorf("first sync count = %d, want 4", count)
	}

	// Labels archive into their mapped folders
	for folder, want := range map[string]int{"inbox": 3, "sent": 1} {
		entries, err := os.ReadDir(filepath.Join(dir, folder))
		if err != nil {
			t.Fatalf("read %s: %v", folder, err)
		}
		emls := 0
		for _, e := range entries {
			if filepath.Ext(e.Name()) == ".eml" {
				emls++
			}
		}
		if emls != want {
			t.Errorf("%s has %d .eml files, want %d", folder, emls, want)
		}
	}

	// mtime comes from the API's internal date, not the Date header
	inbox, _ := os.ReadDir(filepath.Join(dir, "inbox"))
	for _, e := range inbox {
		if filepath.Ext(e.Name()) != ".eml" {
			continue
		}
		info, err := os.Stat(filepath.Join(dir, "inbox", e.Name()))
		if err != nil {
			t.Fatal(err)
		}
		want := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
		if !info.ModTime().UTC().Equal(want) {
			t.Errorf("%s mtime = %v, want internal date %v", e.Name(), info.ModTime().UTC(), want)
		}
	}

	// Second sync downloads only the delta
	sess.labels["INBOX"] = append(sess.labels["INBOX"], "msg-e")
	sess.messages["msg-e"] = rawMessage("e")

	getsBefore := sess.getCalls
	count, err = a.Sync(context.Background())
	if err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	if count != 1 {
		t.Errorf("second sync count = %d, want 1", count)
	}
	if sess.getCalls != getsBefore+1 {
		t.Errorf("second sync fetched %d messages, want 1", sess.getCalls-getsBefore)
	}
}

func TestGmailAdapterSkipsBrokenLabel(t *testing.T) {
	sess := &fakeGmailSession{
		labels: map[string][]string{
			"INBOX": {"msg-a"},
		},
		messages: map[string][]byte{"msg-a": rawMessage("a")},
	}
	a, _ := newTestGmailAdapter(t, sess, []string{"NOPE", "INBOX"})

	count, err := a.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync should not fail on one bad label: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestDecodeWebSafeBase64(t *testing.T) {
	raw := []byte("From: a@example.com\r\n\r\nhällo\r\n")

	padded := base64.URLEncoding.EncodeToString(raw)
	unpadded := base64.RawURLEncoding.EncodeToString(raw)

	for _, encoded := range []string{padded, unpadded} {
		got, err := decodeWebSafeBase64(encoded)
		if err != nil {
			t.Fatalf("decodeWebSafeBase64(%q): %v", encoded, err)
		}
		if string(got) != string(raw) {
			t.Errorf("decoded %q, want %q", got, raw)
		}
	}
}
