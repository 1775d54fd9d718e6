package session

import "time"

// CreatePrethinkJob allocates a new monotonic job id, invalidating any
// older stored hint implicitly (StorePrethinkHint only accepts writes
// for the current job id).
func (s *Session) CreatePrethinkJob() int {
	s.prethinkMu.Lock()
	defer s.prethinkMu.Unlock()
	s.prethinkJobID++
	return s.prethinkJobID
}

// SetPrethinkTask registers the cancel func for the in-flight prethink
// job, cancelling any previous one first. jobID bumps the tracked job id
// if it is newer (mirrors set_prethink_task's max(), defensive against
// out-of-order registration).
func (s *Session) SetPrethinkTask(cancel func(), jobID int) {
	s.CancelPrethinkTask()
	s.prethinkMu.Lock()
	if jobID > s.prethinkJobID {
		s.prethinkJobID = jobID
	}
	s.prethinkCancel = cancel
	s.prethinkMu.Unlock()
}

// ClearPrethinkTask marks the in-flight prethink task as finished
// without cancelling it; call from the job's own completion path so a
// later CancelPrethinkTask does not try to cancel a task that already
// finished naturally.
func (s *Session) ClearPrethinkTask() {
	s.prethinkMu.Lock()
	s.prethinkCancel = nil
	s.prethinkMu.Unlock()
}

// CancelPrethinkTask cancels the in-flight prethink job, if any. It does
// not clear a previously stored hint.
func (s *Session) CancelPrethinkTask() {
	s.prethinkMu.Lock()
	cancel := s.prethinkCancel
	s.prethinkCancel = nil
	s.prethinkMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// StorePrethinkHint stores a prethink result iff jobID is still the
// current job id — i.e. no newer job has been created since this one
// started. Returns false (and stores nothing) for an empty hint or a
// stale job id.
func (s *Session) StorePrethinkHint(jobID int, hint string, sourceTurnID int) bool {
	if hint == "" {
		return false
	}
	s.prethinkMu.Lock()
	defer s.prethinkMu.Unlock()
	if jobID != s.prethinkJobID {
		return false
	}
	s.prethinkHint = hint
	s.prethinkHintReadyAt = time.Now()
	s.prethinkHintFromTurn = sourceTurnID
	return true
}

// ConsumePrethinkHint reads and clears the stored hint in one atomic
// step (consume-exactly-once). Returns the hint, its age, and the turn
// id it was generated from; ok is false if no hint was stored.
func (s *Session) ConsumePrethinkHint() (hint string, age time.Duration, sourceTurnID int, ok bool) {
	s.prethinkMu.Lock()
	defer s.prethinkMu.Unlock()
	if s.prethinkHint == "" {
		return "", 0, 0, false
	}
	hint = s.prethinkHint
	sourceTurnID = s.prethinkHintFromTurn
	if !s.prethinkHintReadyAt.IsZero() {
		age = time.Since(s.prethinkHintReadyAt)
	}
	s.prethinkHint = ""
	s.prethinkHintReadyAt = time.Time{}
	s.prethinkHintFromTurn = 0
	return hint, age, sourceTurnID, true
}
