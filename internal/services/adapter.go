// Package services contains the protocol sync adapters and the orchestrator
// that schedules them.
package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/mailkeep/core/internal/config"
)

var (
	// ErrConnectionFailed indicates the remote server could not be reached
	ErrConnectionFailed = errors.New("connection failed")
	// ErrAuthFailed indicates authentication with the remote server failed
	ErrAuthFailed = errors.New("authentication failed")
	// ErrFolderSelectFailed indicates a remote folder could not be selected
	ErrFolderSelectFailed = errors.New("folder selection failed")
	// ErrUnknownAccountKind indicates an unsupported account protocol kind
	ErrUnknownAccountKind = errors.New("unknown account kind")
)

// SyncAdapter downloads new messages for one account into the local archive.
// Implementations never delete or modify anything on the remote server.
type SyncAdapter interface {
	// Sync enumerates the remote mailbox, downloads messages not yet in the
	// sync state, and returns the number of newly archived messages. State
	// is persisted incrementally, so a partial run keeps its progress.
	Sync(ctx context.Context) (int, error)
	// Name returns the account name the adapter serves
	Name() string
	// Kind returns the account protocol kind
	Kind() string
}

// NewAdapter selects the protocol implementation for an account
func NewAdapter(acct *config.Account, archiveBaseDir, secretsDir string) (SyncAdapter, error) {
	switch acct.Type {
	case config.KindIMAP:
		return NewIMAPAdapter(acct, archiveBaseDir), nil
	case config.KindPOP3:
		return NewPOP3Adapter(acct, archiveBaseDir), nil
	case config.KindGmailAPI:
		return NewGmailAdapter(acct, archiveBaseDir, secretsDir), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAccountKind, acct.Type)
	}
}

// accountArchiveDir returns the archive root for one account
func accountArchiveDir(archiveBaseDir string, acct *config.Account) string {
	return filepath.Join(archiveBaseDir, acct.Name)
}
