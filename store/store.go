package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"inboxpilot/models"
	"inboxpilot/utils"
)

const (
	processedFileVersion = 1
	tasksFileVersion     = 1
	delayedFileVersion   = 1
	whitelistFileVersion = 1
)

type processedFile struct {
	Version       int       `json:"version"`
	LastCheckTime time.Time `json:"last_check_time"`
	ItemIDs       []string  `json:"item_ids"`
}

type tasksFile struct {
	Version int           `json:"version"`
	Records []models.Task `json:"records"`
}

type delayedFile struct {
	Version int                           `json:"version"`
	Records []models.PendingDelayedAction `json:"records"`
}

type whitelistFile struct {
	Version int      `json:"version"`
	Senders []string `json:"senders"`
}

// Store owns the four flat record collections. The in-memory copy is
// authoritative; every mutation rewrites the affected collection's snapshot
// atomically before the mutating call returns. On a write failure the
// in-memory state is kept (not rolled back) and a persistence error is
// returned.
type Store struct {
	mu           sync.Mutex
	dir          string
	processedCap int

	processedIDs  []string // insertion order, oldest first
	processedSet  map[string]struct{}
	lastCheckTime time.Time
	tasks         map[string]models.Task
	delayed       map[string]models.PendingDelayedAction
	whitelist     map[string]struct{}
}

// Open loads all four collections from dir, treating missing files as empty
// sets.
func Open(dir string, processedCap int) (*Store, error) {
	if processedCap <= 0 {
		processedCap = 1000
	}
	s := &Store{
		dir:          dir,
		processedCap: processedCap,
		processedSet: make(map[string]struct{}),
		tasks:        make(map[string]models.Task),
		delayed:      make(map[string]models.PendingDelayedAction),
		whitelist:    make(map[string]struct{}),
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, utils.NewPersistenceError("create data dir", err)
	}
	if err := s.loadAll(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) loadAll() error {
	var pf processedFile
	if ok, err := readJSONFile(s.processedPath(), &pf); err != nil {
		return err
	} else if ok {
		s.lastCheckTime = pf.LastCheckTime
		for _, id := range pf.ItemIDs {
			if _, dup := s.processedSet[id]; dup {
				continue
			}
			s.processedSet[id] = struct{}{}
			s.processedIDs = append(s.processedIDs, id)
		}
	}

	var tf tasksFile
	if ok, err := readJSONFile(s.tasksPath(), &tf); err != nil {
		return err
	} else if ok {
		for _, t := range tf.Records {
			s.tasks[t.ID] = t
		}
	}

	var df delayedFile
	if ok, err := readJSONFile(s.delayedPath(), &df); err != nil {
		return err
	} else if ok {
		for _, d := range df.Records {
			s.delayed[d.ItemID] = d
		}
	}

	var wf whitelistFile
	if ok, err := readJSONFile(s.whitelistPath(), &wf); err != nil {
		return err
	} else if ok {
		for _, addr := range wf.Senders {
			s.whitelist[models.NormalizeAddress(addr)] = struct{}{}
		}
	}
	return nil
}

// ---- processed ids ----

func (s *Store) IsProcessed(itemID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.processedSet[itemID]
	return ok
}

// MarkProcessed records a terminal handling for itemID. The set is capped:
// when it exceeds the configured limit the oldest-added ids are truncated.
func (s *Store) MarkProcessed(itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.processedSet[itemID]; !ok {
		s.processedSet[itemID] = struct{}{}
		s.processedIDs = append(s.processedIDs, itemID)
		if overflow := len(s.processedIDs) - s.processedCap; overflow > 0 {
			for _, evicted := range s.processedIDs[:overflow] {
				delete(s.processedSet, evicted)
			}
			s.processedIDs = append([]string(nil), s.processedIDs[overflow:]...)
		}
	}
	return s.saveProcessedLocked()
}

func (s *Store) ProcessedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.processedIDs)
}

func (s *Store) LastCheckTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCheckTime
}

func (s *Store) SetLastCheckTime(t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCheckTime = t
	return s.saveProcessedLocked()
}

// ---- tasks ----

func (s *Store) TaskByID(id string) (models.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	return t, ok
}

// Tasks returns all stored tasks ordered newest-first by creation time.
func (s *Store) Tasks() []models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// TaskForItem finds an existing task for the same item id whose snippet
// matches, for content-equality deduplication.
func (s *Store) TaskForItem(itemID, snippet string) (models.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.OriginalItem.ID == itemID && t.OriginalItem.Snippet() == snippet {
			return t, true
		}
	}
	return models.Task{}, false
}

func (s *Store) PutTask(t models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = t
	return s.saveTasksLocked()
}

// DeleteTask removes a task; deleting an unknown id is a no-op reported as
// false.
func (s *Store) DeleteTask(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return false, nil
	}
	delete(s.tasks, id)
	return true, s.saveTasksLocked()
}

func (s *Store) TaskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// ---- delayed actions ----

func (s *Store) DelayedActions() []models.PendingDelayedAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.PendingDelayedAction, 0, len(s.delayed))
	for _, d := range s.delayed {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].EnqueuedAt.Before(out[j].EnqueuedAt)
	})
	return out
}

func (s *Store) PutDelayedAction(d models.PendingDelayedAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delayed[d.ItemID] = d
	return s.saveDelayedLocked()
}

func (s *Store) DeleteDelayedAction(itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.delayed[itemID]; !ok {
		return nil
	}
	delete(s.delayed, itemID)
	return s.saveDelayedLocked()
}

// ReplaceDelayedActions swaps the whole collection in one write, for the
// cleanup pass.
func (s *Store) ReplaceDelayedActions(records []models.PendingDelayedAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make(map[string]models.PendingDelayedAction, len(records))
	for _, d := range records {
		next[d.ItemID] = d
	}
	s.delayed = next
	return s.saveDelayedLocked()
}

func (s *Store) DelayedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.delayed)
}

// ---- whitelist ----

func (s *Store) IsWhitelisted(sender string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.whitelist[models.NormalizeAddress(sender)]
	return ok
}

func (s *Store) Whitelist() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.whitelist))
	for addr := range s.whitelist {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}

func (s *Store) AddWhitelist(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.whitelist[models.NormalizeAddress(addr)] = struct{}{}
	return s.saveWhitelistLocked()
}

func (s *Store) RemoveWhitelist(addr string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := models.NormalizeAddress(addr)
	if _, ok := s.whitelist[key]; !ok {
		return false, nil
	}
	delete(s.whitelist, key)
	return true, s.saveWhitelistLocked()
}

// ---- health ----

// Healthy probes the data directory with a throwaway write.
func (s *Store) Healthy() bool {
	probe := filepath.Join(s.dir, ".healthcheck")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return false
	}
	_ = os.Remove(probe)
	return true
}

// ---- persistence ----

func (s *Store) saveProcessedLocked() error {
	f := processedFile{
		Version:       processedFileVersion,
		LastCheckTime: s.lastCheckTime,
		ItemIDs:       append([]string(nil), s.processedIDs...),
	}
	return writeJSONFileAtomic(s.processedPath(), f)
}

func (s *Store) saveTasksLocked() error {
	records := make([]models.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		records = append(records, t)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return writeJSONFileAtomic(s.tasksPath(), tasksFile{Version: tasksFileVersion, Records: records})
}

func (s *Store) saveDelayedLocked() error {
	records := make([]models.PendingDelayedAction, 0, len(s.delayed))
	for _, d := range s.delayed {
		records = append(records, d)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].EnqueuedAt.Before(records[j].EnqueuedAt)
	})
	return writeJSONFileAtomic(s.delayedPath(), delayedFile{Version: delayedFileVersion, Records: records})
}

func (s *Store) saveWhitelistLocked() error {
	senders := make([]string, 0, len(s.whitelist))
	for addr := range s.whitelist {
		senders = append(senders, addr)
	}
	sort.Strings(senders)
	return writeJSONFileAtomic(s.whitelistPath(), whitelistFile{Version: whitelistFileVersion, Senders: senders})
}

func (s *Store) processedPath() string { return filepath.Join(s.dir, "processed.json") }
func (s *Store) tasksPath() string     { return filepath.Join(s.dir, "tasks.json") }
func (s *Store) delayedPath() string   { return filepath.Join(s.dir, "delayed.json") }
func (s *Store) whitelistPath() string { return filepath.Join(s.dir, "whitelist.json") }

func readJSONFile(path string, out interface{}) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, utils.NewPersistenceError("read "+path, err)
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, utils.NewPersistenceError("decode "+path, err)
	}
	return true, nil
}

// writeJSONFileAtomic rewrites the whole snapshot through a temp file and
// rename so readers never observe a partial write.
func writeJSONFileAtomic(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return utils.NewPersistenceError("encode "+path, err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return utils.NewPersistenceError("create temp for "+path, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return utils.NewPersistenceError("write temp for "+path, err)
	}
	if err := tmp.Close(); err != nil {
		return utils.NewPersistenceError("close temp for "+path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return utils.NewPersistenceError("rename temp for "+path, err)
	}
	return nil
}
