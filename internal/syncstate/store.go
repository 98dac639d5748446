// Package syncstate persists the per-folder sets of remote message
// identifiers that have already been downloaded. Each archive folder carries
// a sidecar file with one identifier per line; the set only ever grows.
package syncstate

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// FileName is the sidecar state file colocated with a folder's messages
const FileName = ".sync_state"

// State is the set of identifiers already synced for one (account, folder).
// Identifiers are opaque strings; IMAP UIDs are stored in decimal form.
type State struct {
	ids map[string]struct{}
}

// NewState returns an empty identifier set
func NewState() *State {
	return &State{ids: make(map[string]struct{})}
}

// Has reports whether an identifier was already synced
func (s *State) Has(id string) bool {
	_, ok := s.ids[id]
	return ok
}

// HasUID reports whether a numeric identifier was already synced
func (s *State) HasUID(uid uint32) bool {
	return s.Has(strconv.FormatUint(uint64(uid), 10))
}

// Add records an identifier as synced. Identifiers are never removed.
func (s *State) Add(id string) {
	s.ids[id] = struct{}{}
}

// AddUID records a numeric identifier as synced
func (s *State) AddUID(uid uint32) {
	s.Add(strconv.FormatUint(uint64(uid), 10))
}

// Len returns the number of synced identifiers
func (s *State) Len() int {
	return len(s.ids)
}

// IDs returns all identifiers in stable sorted order. Fully numeric sets
// (IMAP UIDs) sort numerically, everything else lexicographically.
func (s *State) IDs() []string {
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}

	numeric := true
	for _, id := range out {
		if _, err := strconv.ParseUint(id, 10, 64); err != nil {
			numeric = false
			break
		}
	}

	if numeric {
		sort.Slice(out, func(i, j int) bool {
			a, _ := strconv.ParseUint(out[i], 10, 64)
			b, _ := strconv.ParseUint(out[j], 10, 64)
			return a < b
		})
	} else {
		sort.Strings(out)
	}
	return out
}

// Store loads and saves folder sync state under one account's archive tree
type Store struct {
	accountDir string
}

// NewStore creates a Store rooted at the account's archive directory
func NewStore(accountDir string) *Store {
	return &Store{accountDir: accountDir}
}

// AccountDir returns the account archive root this store operates on
func (st *Store) AccountDir() string {
	return st.accountDir
}

// FolderDir returns the absolute directory for a resolved folder path
func (st *Store) FolderDir(folderRel string) string {
	return filepath.Join(st.accountDir, filepath.FromSlash(folderRel))
}

// Load reads the state file for a folder. A missing or empty file yields an
// empty set. Loading the default inbox migrates a legacy account-scoped
// state file forward once, from before folders had their own directories.
func (st *Store) Load(folderRel string) (*State, error) {
	stateFile := filepath.Join(st.FolderDir(folderRel), FileName)

	if folderRel == "inbox" {
		if err := st.migrateLegacyState(stateFile); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(stateFile)
	if err != nil {
		if os.IsNotExist(err) {
			return NewState(), nil
		}
		return nil, err
	}

	state := NewState()
	for _, line := range strings.Split(string(data), "\n") {
		if id := strings.TrimSpace(line); id != "" {
			state.Add(id)
		}
	}
	return state, nil
}

// Save writes the full identifier set for a folder, replacing the previous
// file. Adapters call this after every fetched batch, so a crash loses at
// most the in-flight batch.
func (st *Store) Save(folderRel string, state *State) error {
	dir := st.FolderDir(folderRel)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	content := strings.Join(state.IDs(), "\n")
	return os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644)
}

// migrateLegacyState copies an old account-root state file to the inbox
// folder if the folder-scoped file does not exist yet
func (st *Store) migrateLegacyState(stateFile string) error {
	if _, err := os.Stat(stateFile); err == nil {
		return nil
	}

	legacy := filepath.Join(st.accountDir, FileName)
	data, err := os.ReadFile(legacy)
	if err != nil {
		return nil // no legacy file, nothing to migrate
	}

	if err := os.MkdirAll(filepath.Dir(stateFile), 0755); err != nil {
		return err
	}
	return os.WriteFile(stateFile, data, 0644)
}
