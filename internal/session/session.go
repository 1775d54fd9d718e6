package session

import (
	"sync"
	"time"

	"github.com/hubenschmidt/voice-call-gateway/internal/metrics"
)

// historyLimit caps chat_history length; the oldest turns drop first.
const historyLimit = 80

// Turn is one chat-history entry.
type Turn struct {
	Role    string
	Content string
}

// trackedTask is a cooperative goroutine slot: Cancel asks it to stop,
// Done fires when it has.
type trackedTask struct {
	cancel func()
	done   chan struct{}
}

// Session is the per-call context: the state machine, chat history,
// the barge-in cancellation signal, a tracked-task set, and the
// single-slot prethink cache. All exported methods are goroutine-safe.
//
// Ported from original_source/core/session_manager.py's SessionContext.
type Session struct {
	ID    string
	State *StateMachine

	// ProcessLock ensures only one turn orchestrator pipeline runs at a
	// time for this session, mirroring SessionContext.process_lock.
	ProcessLock sync.Mutex

	mu sync.Mutex

	history []Turn

	cancelMu   sync.Mutex
	cancelled  bool
	cancelOnce chan struct{}

	tasksMu sync.Mutex
	tasks   map[*trackedTask]struct{}
	wg      sync.WaitGroup

	prethinkMu          sync.Mutex
	prethinkJobID       int
	prethinkCancel      func()
	prethinkHint        string
	prethinkHintReadyAt time.Time
	prethinkHintFromTurn int

	LastPartialText string

	Metrics *metrics.SessionRecorder

	turnMu  sync.Mutex
	turnSeq int
}

// New creates a Session with the given id, ready for immediate use.
func New(id string) *Session {
	return &Session{
		ID:         id,
		State:      NewStateMachine(),
		cancelOnce: make(chan struct{}),
		tasks:      make(map[*trackedTask]struct{}),
		Metrics:    metrics.NewSessionRecorder(id),
	}
}

// NextTurnID allocates the next monotonic turn number, mirroring
// websocket_handler.py's session._turn_seq counter. Turn 1 is the first
// call.
func (s *Session) NextTurnID() int {
	s.turnMu.Lock()
	defer s.turnMu.Unlock()
	s.turnSeq++
	return s.turnSeq
}

// CreateCancelToken resets the barge-in cancellation signal at the start
// of a new turn.
func (s *Session) CreateCancelToken() {
	s.cancelMu.Lock()
	defer s.cancelMu.Unlock()
	s.cancelled = false
	s.cancelOnce = make(chan struct{})
}

// IsCancelled reports whether the current turn has been cancelled.
func (s *Session) IsCancelled() bool {
	s.cancelMu.Lock()
	defer s.cancelMu.Unlock()
	return s.cancelled
}

// CancelSignal returns a channel that closes when the current turn is
// cancelled, for use in a select alongside blocking work.
func (s *Session) CancelSignal() <-chan struct{} {
	s.cancelMu.Lock()
	defer s.cancelMu.Unlock()
	return s.cancelOnce
}

// CancelCurrentTasks raises the cancellation signal, bumps the interrupt
// counter, and cancels every tracked task and the in-flight prethink job.
func (s *Session) CancelCurrentTasks() {
	s.cancelMu.Lock()
	if !s.cancelled {
		s.cancelled = true
		close(s.cancelOnce)
	}
	s.cancelMu.Unlock()

	s.Metrics.IncrementInterruptCount()
	s.CancelTrackedTasks()
	s.CancelPrethinkTask()
}

// AppendHistory records one turn, trimming the oldest entries once the
// history exceeds historyLimit.
func (s *Session) AppendHistory(role, content string) {
	if content == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, Turn{Role: role, Content: content})
	if overflow := len(s.history) - historyLimit; overflow > 0 {
		s.history = s.history[overflow:]
	}
}

// History returns a snapshot copy of the chat history.
func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.history))
	copy(out, s.history)
	return out
}

// LastUserText returns the most recent user turn's content, or "".
func (s *Session) LastUserText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].Role == "user" {
			return s.history[i].Content
		}
	}
	return ""
}

// TrackTask registers a running goroutine with a cancel func. Call the
// returned done func from inside the goroutine when it finishes, which
// both removes it from the tracked set and signals any Wait call.
func (s *Session) TrackTask(cancel func()) (done func()) {
	t := &trackedTask{cancel: cancel, done: make(chan struct{})}
	s.tasksMu.Lock()
	s.tasks[t] = struct{}{}
	s.tasksMu.Unlock()
	s.wg.Add(1)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(t.done)
			s.tasksMu.Lock()
			delete(s.tasks, t)
			s.tasksMu.Unlock()
			s.wg.Done()
		})
	}
}

// HasTrackedTasks reports whether any tracked task is still running.
func (s *Session) HasTrackedTasks() bool {
	s.tasksMu.Lock()
	defer s.tasksMu.Unlock()
	return len(s.tasks) > 0
}

// CancelTrackedTasks invokes the cancel func of every still-running
// tracked task.
func (s *Session) CancelTrackedTasks() {
	s.tasksMu.Lock()
	tasks := make([]*trackedTask, 0, len(s.tasks))
	for t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.tasksMu.Unlock()

	for _, t := range tasks {
		if t.cancel != nil {
			t.cancel()
		}
	}
}

// WaitTrackedTasks blocks until all tracked tasks complete or timeout
// elapses. A timeout is acceptable during forced interruption, not an
// error — the caller proceeds regardless.
func (s *Session) WaitTrackedTasks(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
	}
}
