package viewer

import (
	"sync"
	"time"

	"github.com/OpenTraceLab/OpenTraceScan/pkg/classify"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/device"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/store"
)

// State is the data shown by the viewer. The watcher goroutine reloads it;
// the window reads snapshots.
type State struct {
	mu sync.RWMutex

	dir      string
	bookPath string
	session  *device.Session
	book     *classify.Book
	selected int
	err      error
	loadedAt time.Time
}

// Snapshot is an immutable copy of State for one frame.
type Snapshot struct {
	Session  *device.Session
	Book     *classify.Book
	Selected int
	Err      error
	LoadedAt time.Time
}

// NewState watches dir, the directory of one sample.
func NewState(dir, bookPath string) *State {
	return &State{dir: dir, bookPath: bookPath, selected: -1}
}

// Reload reads the newest session and the status book from disk. On error
// the previous data stays visible and the error is reported in snapshots.
func (s *State) Reload() error {
	session, found, err := store.Load(s.dir)
	if err == nil && !found {
		session = nil
	}
	var book *classify.Book
	if err == nil {
		book, err = classify.LoadBook(s.bookPath)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	if err != nil {
		return err
	}
	s.session = session
	s.book = book
	s.loadedAt = time.Now()
	if session == nil || s.selected >= len(session.Devices) {
		s.selected = -1
	}
	return nil
}

// Select marks list index i as selected; -1 clears the selection.
func (s *State) Select(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil || i < 0 || i >= len(s.session.Devices) {
		s.selected = -1
		return
	}
	s.selected = i
}

// Snapshot returns the current data.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Session:  s.session,
		Book:     s.book,
		Selected: s.selected,
		Err:      s.err,
		LoadedAt: s.loadedAt,
	}
}
