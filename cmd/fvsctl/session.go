package main

import (
	"fmt"

	"github.com/grissiom/fvs/flash/simhal"
	"github.com/grissiom/fvs/word"
)

// session owns the whole lifecycle of an fvsctl invocation against a state
// file: the exclusive OS lock, the loaded simulated flash image, and
// persisting it back out. Keeping these together means every command opens
// and closes the state file the same way instead of juggling a lock and a
// flash handle as two separately-managed values.
type session struct {
	path string
	lock *osLock
	fl   *simhal.Flash
}

func openSession(path string, pageSize uint32, w word.Width) (*session, error) {
	lock, err := acquireLock(path)
	if err != nil {
		return nil, err
	}

	fl, err := simhal.LoadFrom(path, pageSize, w)
	if err != nil {
		lock.release()
		return nil, fmt.Errorf("%w (run fvsctl init first)", err)
	}

	return &session{path: path, lock: lock, fl: fl}, nil
}

func (s *session) save() error {
	return s.fl.SaveTo(s.path)
}

func (s *session) close() {
	s.lock.release()
}
