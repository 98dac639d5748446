package services

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/mailkeep/core/internal/config"
	"github.com/mailkeep/core/internal/database/models"
)

var (
	// ErrUnknownAccount indicates the named account is not configured
	ErrUnknownAccount = errors.New("unknown account")
	// ErrSyncInProgress indicates a sync is already running for the account
	ErrSyncInProgress = errors.New("sync already in progress")
)

// AccountStatus is a point-in-time snapshot of one account's sync status
type AccountStatus struct {
	Name        string     `json:"name"`
	Kind        string     `json:"kind"`
	Syncing     bool       `json:"syncing"`
	LastSync    *time.Time `json:"last_sync"`
	LastError   string     `json:"last_error,omitempty"`
	NewMessages int        `json:"new_messages"`
}

// accountEntry holds one account's adapter and mutable status.
// All mutable fields are guarded by the orchestrator mutex.
type accountEntry struct {
	acct    *config.Account
	adapter SyncAdapter

	syncing     bool
	lastSync    time.Time
	lastError   string
	newMessages int
}

// Orchestrator owns the authoritative per-account sync status and guarantees
// at most one in-flight sync per account. Scheduled ticks and on-demand
// triggers both pass through the same Idle/Syncing gate; the gate is held
// only for the state transition, never for the duration of a network sync.
type Orchestrator struct {
	mu       sync.Mutex
	accounts map[string]*accountEntry
	order    []string // stable listing order

	runs *RunService // optional run history, may be nil

	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewOrchestrator builds the orchestrator for the configured accounts.
// Accounts whose adapter cannot be constructed are skipped; the rest proceed.
func NewOrchestrator(accounts []*config.Account, archiveBaseDir, secretsDir string, runs *RunService) *Orchestrator {
	o := &Orchestrator{
		accounts: make(map[string]*accountEntry),
		runs:     runs,
		stopChan: make(chan struct{}),
	}

	for _, acct := range accounts {
		adapter, err := NewAdapter(acct, archiveBaseDir, secretsDir)
		if err != nil {
			log.Printf("[Orchestrator] Skipping account '%s': %v", acct.Name, err)
			continue
		}
		o.accounts[acct.Name] = &accountEntry{acct: acct, adapter: adapter}
		o.order = append(o.order, acct.Name)
	}

	return o
}

// Start launches one scheduler goroutine per account, each running an
// immediate first sync and then ticking at the account's configured interval
func (o *Orchestrator) Start() {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return
	}
	o.running = true
	o.mu.Unlock()

	log.Printf("[Orchestrator] Starting with %d accounts", len(o.order))

	for _, name := range o.order {
		entry := o.accounts[name]
		o.wg.Add(1)
		go o.scheduleLoop(name, entry.acct.SyncInterval())
	}
}

// Stop signals the scheduler loops to exit and waits for them. An in-flight
// sync runs to completion; only new ticks are prevented.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	close(o.stopChan)
	o.running = false
	o.mu.Unlock()

	o.wg.Wait()
	log.Printf("[Orchestrator] Stopped")
}

func (o *Orchestrator) scheduleLoop(name string, interval time.Duration) {
	defer o.wg.Done()

	o.runScheduled(name)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			o.runScheduled(name)
		case <-o.stopChan:
			return
		}
	}
}

// runScheduled runs one scheduled sync, skipping the tick if a manual sync
// already holds the account's gate
func (o *Orchestrator) runScheduled(name string) {
	if !o.tryBegin(name) {
		log.Printf("[Orchestrator] Account '%s' is already syncing, skipping tick", name)
		return
	}
	o.runSync(name, models.TriggerScheduled)
}

// tryBegin flips the account from Idle to Syncing. It returns false when the
// account is unknown or already Syncing.
func (o *Orchestrator) tryBegin(name string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	entry, ok := o.accounts[name]
	if !ok || entry.syncing {
		return false
	}
	entry.syncing = true
	return true
}

// runSync executes the adapter for an account and records the outcome.
// The caller must already hold the account's Syncing state.
func (o *Orchestrator) runSync(name, trigger string) {
	entry := o.accounts[name]
	startedAt := time.Now()

	count, err := entry.adapter.Sync(context.Background())
	finishedAt := time.Now()

	o.mu.Lock()
	entry.syncing = false
	if err != nil {
		entry.lastError = err.Error()
	} else {
		entry.lastError = ""
		entry.lastSync = finishedAt
		entry.newMessages = count
	}
	o.mu.Unlock()

	if err != nil {
		log.Printf("[Orchestrator] Account '%s' sync failed: %v", name, err)
	} else if count > 0 {
		log.Printf("[Orchestrator] Account '%s' synced %d new messages", name, count)
	}

	if o.runs != nil {
		run := &models.SyncRun{
			Account:     name,
			Kind:        entry.adapter.Kind(),
			Trigger:     trigger,
			StartedAt:   startedAt,
			FinishedAt:  finishedAt,
			NewMessages: count,
		}
		if err != nil {
			run.Error = err.Error()
		}
		o.runs.Record(run)
	}
}

// TriggerSync starts an on-demand sync for one account in the background.
// An account already Syncing is rejected with ErrSyncInProgress, not queued.
func (o *Orchestrator) TriggerSync(name string) error {
	o.mu.Lock()
	entry, ok := o.accounts[name]
	if !ok {
		o.mu.Unlock()
		return ErrUnknownAccount
	}
	if entry.syncing {
		o.mu.Unlock()
		return ErrSyncInProgress
	}
	entry.syncing = true
	o.mu.Unlock()

	go o.runSync(name, models.TriggerManual)
	return nil
}

// TriggerAll starts on-demand syncs for every idle account and reports which
// accounts were started and which were skipped because a sync is running.
// It never blocks on a busy account.
func (o *Orchestrator) TriggerAll() (started, skipped []string) {
	o.mu.Lock()
	for _, name := range o.order {
		entry := o.accounts[name]
		if entry.syncing {
			skipped = append(skipped, name)
			continue
		}
		entry.syncing = true
		started = append(started, name)
	}
	o.mu.Unlock()

	for _, name := range started {
		go o.runSync(name, models.TriggerManual)
	}
	return started, skipped
}

// SyncNow runs one foreground sync for an account, for one-off CLI use
func (o *Orchestrator) SyncNow(ctx context.Context, name string) (int, error) {
	o.mu.Lock()
	entry, ok := o.accounts[name]
	if !ok {
		o.mu.Unlock()
		return 0, ErrUnknownAccount
	}
	if entry.syncing {
		o.mu.Unlock()
		return 0, ErrSyncInProgress
	}
	entry.syncing = true
	o.mu.Unlock()

	startedAt := time.Now()
	count, err := entry.adapter.Sync(ctx)
	finishedAt := time.Now()

	o.mu.Lock()
	entry.syncing = false
	if err != nil {
		entry.lastError = err.Error()
	} else {
		entry.lastError = ""
		entry.lastSync = finishedAt
		entry.newMessages = count
	}
	o.mu.Unlock()

	if o.runs != nil {
		run := &models.SyncRun{
			Account:     name,
			Kind:        entry.adapter.Kind(),
			Trigger:     models.TriggerManual,
			StartedAt:   startedAt,
			FinishedAt:  finishedAt,
			NewMessages: count,
		}
		if err != nil {
			run.Error = err.Error()
		}
		o.runs.Record(run)
	}

	return count, err
}

// Status returns the status snapshot for one account
func (o *Orchestrator) Status(name string) (AccountStatus, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	entry, ok := o.accounts[name]
	if !ok {
		return AccountStatus{}, ErrUnknownAccount
	}
	return entry.snapshot(), nil
}

// StatusAll returns status snapshots for every account in stable order
func (o *Orchestrator) StatusAll() []AccountStatus {
	o.mu.Lock()
	defer o.mu.Unlock()

	statuses := make([]AccountStatus, 0, len(o.order))
	for _, name := range o.order {
		statuses = append(statuses, o.accounts[name].snapshot())
	}
	return statuses
}

// snapshot copies the entry's status; the orchestrator mutex must be held
func (e *accountEntry) snapshot() AccountStatus {
	status := AccountStatus{
		Name:        e.acct.Name,
		Kind:        e.acct.Type,
		Syncing:     e.syncing,
		LastError:   e.lastError,
		NewMessages: e.newMessages,
	}
	if !e.lastSync.IsZero() {
		t := e.lastSync
		status.LastSync = &t
	}
	return status
}
