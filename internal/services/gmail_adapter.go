package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/mailkeep/core/internal/archive"
	"github.com/mailkeep/core/internal/config"
	"github.com/mailkeep/core/internal/syncstate"
)

const (
	// gmailPageSize is the message-id listing page size
	gmailPageSize = 500
	// gmailSaveEvery is how many downloads happen between state saves
	gmailSaveEvery = 100
)

// gmailSession is the narrow slice of the Gmail API the adapter needs
type gmailSession interface {
	// ListMessageIDs returns one page of message ids for a label plus the
	// next page token ("" when exhausted)
	ListMessageIDs(labelID, pageToken string) (ids []string, nextPage string, err error)
	// GetRaw downloads one message's full raw content and its internal
	// received time (zero when unknown)
	GetRaw(id string) ([]byte, time.Time, error)
}

// GmailAdapter syncs a Gmail account over the REST API. Message ids are
// globally unique within the account but a message can carry several labels,
// so state is tracked independently per label.
type GmailAdapter struct {
	acct       *config.Account
	store      *syncstate.Store
	secretsDir string

	// connect is swapped out in tests
	connect func(ctx context.Context) (gmailSession, error)
}

// NewGmailAdapter creates the Gmail API sync adapter for an account
func NewGmailAdapter(acct *config.Account, archiveBaseDir, secretsDir string) *GmailAdapter {
	a := &GmailAdapter{
		acct:       acct,
		store:      syncstate.NewStore(accountArchiveDir(archiveBaseDir, acct)),
		secretsDir: secretsDir,
	}
	a.connect = a.dial
	return a
}

// Name returns the account name
func (a *GmailAdapter) Name() string { return a.acct.Name }

// Kind returns the protocol kind
func (a *GmailAdapter) Kind() string { return config.KindGmailAPI }

// Sync pages through each configured label's message ids, computes the delta
// against that label's state, and downloads new messages one by one.
func (a *GmailAdapter) Sync(ctx context.Context) (int, error) {
	sess, err := a.connect(ctx)
	if err != nil {
		return 0, err
	}

	totalNew := 0
	for _, label := range a.acct.Labels {
		select {
		case <-ctx.Done():
			return totalNew, ctx.Err()
		default:
		}

		n, err := a.syncLabel(ctx, sess, label)
		if err != nil {
			log.Printf("[Gmail] %s: skipping label %q: %v", a.acct.Name, label, err)
			continue
		}
		totalNew += n
	}

	log.Printf("[Gmail] %s: downloaded %d new messages", a.acct.Name, totalNew)
	return totalNew, nil
}

func (a *GmailAdapter) syncLabel(ctx context.Context, sess gmailSession, label string) (int, error) {
	folderRel := archive.ResolveLabel(label)
	state, err := a.store.Load(folderRel)
	if err != nil {
		return 0, err
	}

	// Build the complete remote id set first; pages are cheap compared to
	// full message fetches
	var allIDs []string
	pageToken := ""
	for {
		ids, next, err := sess.ListMessageIDs(label, pageToken)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrFolderSelectFailed, err)
		}
		allIDs = append(allIDs, ids...)
		if next == "" {
			break
		}
		pageToken = next
	}

	var newIDs []string
	for _, msgID := range allIDs {
		if !state.Has(msgID) {
			newIDs = append(newIDs, msgID)
		}
	}
	if len(newIDs) == 0 {
		return 0, nil
	}
	log.Printf("[Gmail] %s: label %q (%s): %d new of %d total", a.acct.Name, label, folderRel, len(newIDs), len(allIDs))

	dir := a.store.FolderDir(folderRel)
	newCount := 0
	for _, msgID := range newIDs {
		select {
		case <-ctx.Done():
			a.store.Save(folderRel, state)
			return newCount, ctx.Err()
		default:
		}

		raw, internalDate, err := sess.GetRaw(msgID)
		if err != nil {
			log.Printf("[Gmail] %s: fetch %s: %v", a.acct.Name, msgID, err)
			continue
		}

		path, created, err := archive.WriteMessage(dir, msgID, raw)
		if err != nil {
			log.Printf("[Gmail] %s: write %s: %v", a.acct.Name, msgID, err)
			continue
		}
		// The API's internalDate is more reliable than the Date header
		if created && !internalDate.IsZero() {
			os.Chtimes(path, internalDate, internalDate)
		}

		state.Add(msgID)
		if created {
			newCount++
		}

		if newCount > 0 && newCount%gmailSaveEvery == 0 {
			if err := a.store.Save(folderRel, state); err != nil {
				return newCount, err
			}
		}
	}

	if err := a.store.Save(folderRel, state); err != nil {
		return newCount, err
	}
	return newCount, nil
}

// dial builds an authenticated Gmail API session from the OAuth client
// secret and the account's stored token. Obtaining the first token is an
// external concern; refresh happens automatically through the token source.
func (a *GmailAdapter) dial(ctx context.Context) (gmailSession, error) {
	credPath := a.acct.CredentialsFile
	if credPath == "" {
		credPath = "credentials.json"
	}
	if !filepath.IsAbs(credPath) {
		credPath = filepath.Join(a.secretsDir, credPath)
	}

	credData, err := os.ReadFile(credPath)
	if err != nil {
		return nil, fmt.Errorf("%w: read OAuth credentials: %v", ErrAuthFailed, err)
	}

	oauthCfg, err := google.ConfigFromJSON(credData, gmail.GmailReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("%w: parse OAuth credentials: %v", ErrAuthFailed, err)
	}

	tokenPath := filepath.Join(a.secretsDir, a.acct.Name+"_token.json")
	token, err := loadToken(tokenPath)
	if err != nil {
		return nil, fmt.Errorf("%w: no stored token for %s (complete the consent flow first): %v", ErrAuthFailed, a.acct.Name, err)
	}

	source := oauthCfg.TokenSource(ctx, token)

	// Force a refresh now so auth errors surface here, not mid-sync
	fresh, err := source.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: token refresh: %v", ErrAuthFailed, err)
	}
	if fresh.AccessToken != token.AccessToken {
		if err := saveToken(tokenPath, fresh); err != nil {
			log.Printf("[Gmail] %s: persist refreshed token: %v", a.acct.Name, err)
		}
	}

	svc, err := gmail.NewService(ctx, option.WithTokenSource(source))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	return &liveGmailSession{svc: svc}, nil
}

func loadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, err
	}
	return &token, nil
}

func saveToken(path string, token *oauth2.Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

type liveGmailSession struct {
	svc *gmail.Service
}

func (s *liveGmailSession) ListMessageIDs(labelID, pageToken string) ([]string, string, error) {
	call := s.svc.Users.Messages.List("me").LabelIds(labelID).MaxResults(gmailPageSize)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, "", err
	}

	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		ids = append(ids, m.Id)
	}
	return ids, resp.NextPageToken, nil
}

func (s *liveGmailSession) GetRaw(id string) ([]byte, time.Time, error) {
	msg, err := s.svc.Users.Messages.Get("me", id).Format("raw").Do()
	if err != nil {
		return nil, time.Time{}, err
	}

	raw, err := decodeWebSafeBase64(msg.Raw)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("decode raw content: %w", err)
	}

	var internalDate time.Time
	if msg.InternalDate > 0 {
		internalDate = time.UnixMilli(msg.InternalDate).UTC()
	}
	return raw, internalDate, nil
}

// decodeWebSafeBase64 decodes the Gmail API's URL-safe base64, which may
// arrive with or without padding
func decodeWebSafeBase64(s string) ([]byte, error) {
	if data, err := base64.URLEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.RawURLEncoding.DecodeString(s)
}
