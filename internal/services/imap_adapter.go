package services

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	id "github.com/emersion/go-imap-id"
	"github.com/mailkeep/core/internal/archive"
	"github.com/mailkeep/core/internal/config"
	"github.com/mailkeep/core/internal/syncstate"
)

const (
	// imapFetchBatchSize bounds memory per FETCH round-trip and sets the
	// granularity of incremental state saves
	imapFetchBatchSize = 100
	imapDialTimeout    = 10 * time.Second
	imapCommandTimeout = 5 * time.Minute
)

// imapSession is the narrow slice of IMAP the adapter needs.
// The live implementation wraps an emersion/go-imap client.
type imapSession interface {
	// Folders lists all selectable folders (\Noselect entries excluded)
	Folders() ([]string, error)
	// SelectReadOnly opens a folder without marking anything on the server
	SelectReadOnly(name string) error
	// SearchAllUIDs returns every message UID in the selected folder
	SearchAllUIDs() ([]uint32, error)
	// FetchRaw downloads full raw messages for a batch of UIDs
	FetchRaw(uids []uint32) (map[uint32][]byte, error)
	Logout() error
}

// IMAPAdapter syncs an IMAP account. UIDs are only unique within one remote
// folder, so sync state is tracked strictly per folder.
type IMAPAdapter struct {
	acct  *config.Account
	store *syncstate.Store

	// connect is swapped out in tests
	connect func() (imapSession, error)
}

// NewIMAPAdapter creates the IMAP sync adapter for an account
func NewIMAPAdapter(acct *config.Account, archiveBaseDir string) *IMAPAdapter {
	a := &IMAPAdapter{
		acct:  acct,
		store: syncstate.NewStore(accountArchiveDir(archiveBaseDir, acct)),
	}
	a.connect = a.dial
	return a
}

// Name returns the account name
func (a *IMAPAdapter) Name() string { return a.acct.Name }

// Kind returns the protocol kind
func (a *IMAPAdapter) Kind() string { return config.KindIMAP }

// Sync connects, resolves the folder set, and downloads unseen messages
// folder by folder. A folder that cannot be selected is skipped with a
// warning rather than failing the whole account.
func (a *IMAPAdapter) Sync(ctx context.Context) (int, error) {
	sess, err := a.connect()
	if err != nil {
		return 0, err
	}
	defer sess.Logout()

	folders := a.acct.Folders
	if a.acct.SyncAllFolders() {
		folders, err = sess.Folders()
		if err != nil {
			return 0, fmt.Errorf("list folders: %w", err)
		}
		log.Printf("[IMAP] %s: auto-discovered %d syncable folders", a.acct.Name, len(folders))
	}

	totalNew := 0
	for _, folder := range folders {
		select {
		case <-ctx.Done():
			return totalNew, ctx.Err()
		default:
		}

		n, err := a.syncFolder(sess, folder)
		if err != nil {
			log.Printf("[IMAP] %s: skipping folder %q: %v", a.acct.Name, folder, err)
			continue
		}
		totalNew += n
	}

	log.Printf("[IMAP] %s: downloaded %d new messages", a.acct.Name, totalNew)
	return totalNew, nil
}

func (a *IMAPAdapter) syncFolder(sess imapSession, folder string) (int, error) {
	folderRel := archive.ResolveFolder(folder)
	state, err := a.store.Load(folderRel)
	if err != nil {
		return 0, err
	}

	if err := sess.SelectReadOnly(folder); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrFolderSelectFailed, err)
	}

	uids, err := sess.SearchAllUIDs()
	if err != nil {
		return 0, err
	}

	var newUIDs []uint32
	for _, uid := range uids {
		if !state.HasUID(uid) {
			newUIDs = append(newUIDs, uid)
		}
	}
	if len(newUIDs) == 0 {
		return 0, nil
	}
	log.Printf("[IMAP] %s: folder %q (%s): %d new of %d total", a.acct.Name, folder, folderRel, len(newUIDs), len(uids))

	dir := a.store.FolderDir(folderRel)
	newCount := 0
	for i := 0; i < len(newUIDs); i += imapFetchBatchSize {
		end := i + imapFetchBatchSize
		if end > len(newUIDs) {
			end = len(newUIDs)
		}

		messages, err := sess.FetchRaw(newUIDs[i:end])
		if err != nil {
			// State for completed batches is already saved
			return newCount, err
		}

		for uid, raw := range messages {
			if len(raw) == 0 {
				continue
			}
			_, created, err := archive.WriteMessage(dir, strconv.FormatUint(uint64(uid), 10), raw)
			if err != nil {
				log.Printf("[IMAP] %s: write UID %d: %v", a.acct.Name, uid, err)
				continue
			}
			state.AddUID(uid)
			if created {
				newCount++
			}
		}

		if err := a.store.Save(folderRel, state); err != nil {
			return newCount, err
		}
	}

	return newCount, nil
}

// dial opens and authenticates the live IMAP session
func (a *IMAPAdapter) dial() (imapSession, error) {
	addr := fmt.Sprintf("%s:%d", a.acct.Host, a.acct.Port)
	dialer := &net.Dialer{Timeout: imapDialTimeout}

	var c *client.Client
	if a.acct.UseSSL() {
		tlsConfig := &tls.Config{ServerName: a.acct.Host}
		conn, err := tls.DialWithDialer(dialer, "tcp", addr, tlsConfig)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
		}
		c, err = client.New(conn)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
		}
	} else {
		conn, err := dialer.Dial("tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
		}
		c, err = client.New(conn)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
		}
	}

	c.Timeout = imapCommandTimeout

	// Some providers require client identification before login
	if ok, _ := c.Support("ID"); ok {
		idClient := id.NewClient(c)
		idClient.ID(id.ID{
			id.FieldName:    "MailKeep",
			id.FieldVersion: "1.0.0",
			id.FieldVendor:  "MailKeep",
		})
	}

	if err := c.Login(a.acct.Email, a.acct.Password); err != nil {
		c.Logout()
		return nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}

	log.Printf("[IMAP] %s: logged in to %s", a.acct.Name, a.acct.Host)
	return &liveIMAPSession{c: c}, nil
}

type liveIMAPSession struct {
	c *client.Client
}

func (s *liveIMAPSession) Folders() ([]string, error) {
	ch := make(chan *imap.MailboxInfo, 16)
	done := make(chan error, 1)
	go func() {
		done <- s.c.List("", "*", ch)
	}()

	var folders []string
	for mbox := range ch {
		selectable := true
		for _, attr := range mbox.Attributes {
			if attr == imap.NoSelectAttr {
				selectable = false
				break
			}
		}
		if selectable {
			folders = append(folders, mbox.Name)
		}
	}
	if err := <-done; err != nil {
		return nil, err
	}
	return folders, nil
}

func (s *liveIMAPSession) SelectReadOnly(name string) error {
	_, err := s.c.Select(name, true)
	return err
}

func (s *liveIMAPSession) SearchAllUIDs() ([]uint32, error) {
	return s.c.UidSearch(imap.NewSearchCriteria())
}

func (s *liveIMAPSession) FetchRaw(uids []uint32) (map[uint32][]byte, error) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}

	ch := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- s.c.UidFetch(seqset, items, ch)
	}()

	result := make(map[uint32][]byte, len(uids))
	for msg := range ch {
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		raw, err := io.ReadAll(body)
		if err != nil {
			log.Printf("[IMAP] read body UID %d: %v", msg.Uid, err)
			continue
		}
		result[msg.Uid] = raw
	}
	if err := <-done; err != nil {
		return nil, err
	}
	return result, nil
}

func (s *liveIMAPSession) Logout() error {
	return s.c.Logout()
}
