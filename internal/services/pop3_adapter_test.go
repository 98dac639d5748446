package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/mailkeep/core/internal/config"
	"github.com/mailkeep/core/internal/syncstate"
)

// fakePOP3Session serves canned messages from memory
type fakePOP3Session struct {
	messages      [][]byte
	retrieveCalls int
}

func (f *fakePOP3Session) Count() (int, error) {
	return len(f.messages), nil
}

func (f *fakePOP3Session) Retrieve(n int) ([]byte, error) {
	f.retrieveCalls++
	if n < 1 || n > len(f.messages) {
		return nil, fmt.Errorf("no such message %d", n)
	}
	return f.messages[n-1], nil
}

func (f *fakePOP3Session) Quit() error { return nil }

func newTestPOP3Adapter(t *testing.T, sess *fakePOP3Session) (*POP3Adapter, string) {
	t.Helper()
	dir := t.TempDir()
	a := &POP3Adapter{
		acct: &config.Account{
			Name: "test-pop3",
			Type: config.KindPOP3,
		},
		store:   syncstate.NewStore(dir),
		connect: func() (pop3Session, error) { return sess, nil },
	}
	return a, dir
}

func TestPOP3AdapterSync(t *testing.T) {
	sess := &fakePOP3Session{
		messages: [][]byte{
			rawMessage("one"),
			rawMessage("two"),
		},
	}
	a, dir := newTestPOP3Adapter(t, sess)

	count, err := a.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if count != 2 {
		t.Errorf("first sync count = %d, want 2", count)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "inbox"))
	if err != nil {
		t.Fatalf("read inbox dir: %v", err)
	}
	emls := 0
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".eml" {
			emls++
		}
	}
	if emls != 2 {
		t.Errorf("archived %d .eml files, want 2", emls)
	}

	// POP3 has no stable identifiers, so a second pass retrieves everything
	// again but writes nothing new
	sess.messages = append(sess.messages, rawMessage("three"))
	count, err = a.Sync(context.Background())
	if err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	if count != 1 {
		t.Errorf("second sync count = %d, want 1", count)
	}

	state, err := a.store.Load("inbox")
	if err != nil {
		t.Fatal(err)
	}
	if state.Len() != 3 {
		t.Errorf("state has %d hashes, want 3", state.Len())
	}
}

func TestPOP3AdapterDeduplicatesByContent(t *testing.T) {
	same := rawMessage("duplicate")
	sess := &fakePOP3Session{
		// The server holds the same message twice, e.g. after a re-upload
		messages: [][]byte{same, same},
	}
	a, dir := newTestPOP3Adapter(t, sess)

	count, err := a.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1 for identical content", count)
	}

	entries, _ := os.ReadDir(filepath.Join(dir, "inbox"))
	emls := 0
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".eml" {
			emls++
		}
	}
	if emls != 1 {
		t.Errorf("archived %d .eml files, want 1", emls)
	}
}

func TestPOP3AdapterRetrieveErrorSkipsMessage(t *testing.T) {
	sess := &fakePOP3Session{
		messages: [][]byte{rawMessage("one"), rawMessage("two"), rawMessage("three")},
	}
	a, _ := newTestPOP3Adapter(t, sess)
	a.connect = func() (pop3Session, error) { return &failingPOP3Session{inner: sess, failAt: 2}, nil }

	count, err := a.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync should not fail on one bad message: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}

// failingPOP3Session fails retrieval of exactly one message index
type failingPOP3Session struct {
	inner  *fakePOP3Session
	failAt int
}

func (f *failingPOP3Session) Count() (int, error) { return f.inner.Count() }

func (f *failingPOP3Session) Retrieve(n int) ([]byte, error) {
	if n == f.failAt {
		return nil, fmt.Errorf("-ERR message %d deleted", n)
	}
	return f.inner.Retrieve(n)
}

func (f *failingPOP3Session) Quit() error { return nil }
