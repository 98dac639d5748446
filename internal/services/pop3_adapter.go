package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/knadh/go-pop3"
	"github.com/mailkeep/core/internal/archive"
	"github.com/mailkeep/core/internal/config"
	"github.com/mailkeep/core/internal/syncstate"
)

const (
	pop3DialTimeout = 10 * time.Second
	// pop3SaveEvery bounds how much progress a crash can lose
	pop3SaveEvery = 100
)

// pop3Session is the narrow slice of POP3 the adapter needs
type pop3Session interface {
	// Count returns the number of messages in the mailbox
	Count() (int, error)
	// Retrieve downloads the raw message at 1-based index n
	Retrieve(n int) ([]byte, error)
	Quit() error
}

// POP3Adapter syncs a POP3 account. The protocol exposes no identifier that
// is stable across sessions, so every message is retrieved and deduplicated
// by content hash: bandwidth is spent on unchanged mail, disk writes are not.
// Only the inbox scope exists in POP3.
type POP3Adapter struct {
	acct  *config.Account
	store *syncstate.Store

	// connect is swapped out in tests
	connect func() (pop3Session, error)
}

// NewPOP3Adapter creates the POP3 sync adapter for an account
func NewPOP3Adapter(acct *config.Account, archiveBaseDir string) *POP3Adapter {
	a := &POP3Adapter{
		acct:  acct,
		store: syncstate.NewStore(accountArchiveDir(archiveBaseDir, acct)),
	}
	a.connect = a.dial
	return a
}

// Name returns the account name
func (a *POP3Adapter) Name() string { return a.acct.Name }

// Kind returns the protocol kind
func (a *POP3Adapter) Kind() string { return config.KindPOP3 }

// Sync retrieves every message in the mailbox and archives the ones whose
// content hash has not been seen before.
func (a *POP3Adapter) Sync(ctx context.Context) (int, error) {
	const folderRel = "inbox"

	state, err := a.store.Load(folderRel)
	if err != nil {
		return 0, err
	}

	sess, err := a.connect()
	if err != nil {
		return 0, err
	}
	defer sess.Quit()

	count, err := sess.Count()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	log.Printf("[POP3] %s: mailbox has %d messages", a.acct.Name, count)

	dir := a.store.FolderDir(folderRel)
	newCount := 0
	for i := 1; i <= count; i++ {
		select {
		case <-ctx.Done():
			a.store.Save(folderRel, state)
			return newCount, ctx.Err()
		default:
		}

		raw, err := sess.Retrieve(i)
		if err != nil {
			log.Printf("[POP3] %s: retrieve message %d: %v", a.acct.Name, i, err)
			continue
		}

		// The content hash doubles as the external identifier
		hash := archive.Fingerprint(raw)
		if state.Has(hash) {
			continue
		}

		_, created, err := archive.WriteMessage(dir, hash, raw)
		if err != nil {
			log.Printf("[POP3] %s: write message %d: %v", a.acct.Name, i, err)
			continue
		}
		state.Add(hash)
		if created {
			newCount++
		}

		if newCount > 0 && newCount%pop3SaveEvery == 0 {
			if err := a.store.Save(folderRel, state); err != nil {
				return newCount, err
			}
		}
	}

	if err := a.store.Save(folderRel, state); err != nil {
		return newCount, err
	}

	log.Printf("[POP3] %s: downloaded %d new messages", a.acct.Name, newCount)
	return newCount, nil
}

// dial opens and authenticates the live POP3 session
func (a *POP3Adapter) dial() (pop3Session, error) {
	p := pop3.New(pop3.Opt{
		Host:        a.acct.Host,
		Port:        a.acct.Port,
		TLSEnabled:  a.acct.UseSSL(),
		DialTimeout: pop3DialTimeout,
	})

	conn, err := p.NewConn()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	if err := conn.Auth(a.acct.Email, a.acct.Password); err != nil {
		conn.Quit()
		return nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}

	log.Printf("[POP3] %s: logged in to %s", a.acct.Name, a.acct.Host)
	return &livePOP3Session{conn: conn}, nil
}

type livePOP3Session struct {
	conn *pop3.Conn
}

func (s *livePOP3Session) Count() (int, error) {
	count, _, err := s.conn.Stat()
	return count, err
}

func (s *livePOP3Session) Retrieve(n int) ([]byte, error) {
	buf, err := s.conn.RetrRaw(n)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *livePOP3Session) Quit() error {
	return s.conn.Quit()
}
