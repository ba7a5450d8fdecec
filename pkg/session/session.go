// Package session holds per-user state: the form handle, the in-progress question and the
// preference cache.
package session

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"formpilot/pkg/form"
	"formpilot/pkg/prefs"
	"formpilot/pkg/proto"
)

// StateIdle is the state of a session with no traversal in progress.
const StateIdle proto.State = "IDLE"

const maxTransitions = 32

var (
	ErrDriverActive = errors.New("a form is already being filled")
	ErrNoDriver     = errors.New("no form is being filled")
	ErrNoQuestion   = errors.New("no current question")
	ErrNoLink       = errors.New("no form link set")
)

// StateTransition records one state change.
type StateTransition struct {
	From   proto.State
	To     proto.State
	At     time.Time
	Reason string
}

// Session is the state of one user. Once a link has been set it holds either an idle link or an
// active driver, never both.
type Session struct {
	UserID int64

	mu          sync.Mutex
	chatID      int64
	link        string
	driver      form.Driver
	fresh       bool
	question    form.Question
	info        *form.Info
	answer      *form.Answer
	markup      *Markup
	state       proto.State
	transitions []StateTransition
	notices     []string
	prefs       *prefs.Cache
	updatedAt   time.Time

	inFlight atomic.Bool
}

func New(userID, chatID int64) *Session {
	return &Session{
		UserID: userID,
		chatID: chatID,
		state:  StateIdle,
		prefs:  prefs.NewCache(),
	}
}

// TryBegin claims the session for one traversal step. It returns false if another step holds it.
func (s *Session) TryBegin() bool {
	return s.inFlight.CompareAndSwap(false, true)
}

// End releases the claim taken by TryBegin.
func (s *Session) End() {
	s.inFlight.Store(false)
}

// Busy reports whether a traversal step is in flight.
func (s *Session) Busy() bool {
	return s.inFlight.Load()
}

// ChatID is the chat that prompts and notices are delivered to.
func (s *Session) ChatID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chatID
}

// SetChatID updates the delivery chat. Zero is ignored.
func (s *Session) SetChatID(chatID int64) {
	if chatID == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chatID = chatID
}

func (s *Session) Prefs() *prefs.Cache {
	return s.prefs
}

func (s *Session) Link() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.link
}

// SetLink stores the idle form link. It fails while a driver is active.
func (s *Session) SetLink(link string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.driver != nil {
		return ErrDriverActive
	}
	s.link = link
	s.touch()
	return nil
}

func (s *Session) Driver() form.Driver {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.driver
}

func (s *Session) HasActiveDriver() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.driver != nil
}

// Activate swaps the idle link for an active driver.
func (s *Session) Activate(d form.Driver) error {
	if d == nil {
		return ErrNoDriver
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.driver != nil {
		return ErrDriverActive
	}
	s.driver = d
	s.link = ""
	s.fresh = true
	s.touch()
	return nil
}

// TakeFresh reports whether the driver has not yet been asked for a question, and clears the flag.
func (s *Session) TakeFresh() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	fresh := s.fresh
	s.fresh = false
	return fresh
}

// Release closes the active driver, restores its idle link and clears transient state.
// It is a no-op without an active driver.
func (s *Session) Release() error {
	s.mu.Lock()
	d := s.driver
	if d != nil {
		s.link = d.IdleLink()
		s.driver = nil
		s.fresh = false
	}
	s.clearTransientLocked()
	s.touch()
	s.mu.Unlock()

	if d == nil {
		return nil
	}
	if err := d.Close(); err != nil {
		return fmt.Errorf("failed to close form driver: %w", err)
	}
	return nil
}

// Current returns the in-progress question, its metadata and the answer built so far.
func (s *Session) Current() (form.Question, *form.Info, *form.Answer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var info *form.Info
	if s.info != nil {
		c := *s.info
		info = &c
	}
	var answer *form.Answer
	if s.answer != nil {
		c := s.answer.Clone()
		answer = &c
	}
	return s.question, info, answer
}

func (s *Session) SetQuestion(q form.Question, info form.Info) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.question = q
	s.info = &info
	s.answer = nil
	s.touch()
}

// SetAnswer stores the answer for the current question.
func (s *Session) SetAnswer(a form.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.question == nil {
		return ErrNoQuestion
	}
	c := a.Clone()
	s.answer = &c
	s.touch()
	return nil
}

func (s *Session) ClearAnswer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answer = nil
}

// ClearQuestion drops the current question together with its answer and prompt.
func (s *Session) ClearQuestion() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearTransientLocked()
}

// ClearTransient drops the question, the answer and the prompt markup.
func (s *Session) ClearTransient() {
	s.ClearQuestion()
}

func (s *Session) clearTransientLocked() {
	s.question = nil
	s.info = nil
	s.answer = nil
	s.markup = nil
}

func (s *Session) Markup() *Markup {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markup
}

func (s *Session) SetMarkup(m *Markup) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markup = m
}

func (s *Session) ClearMarkup() {
	s.SetMarkup(nil)
}

func (s *Session) State() proto.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetState moves the session to state and records the transition. Callers validate the move.
func (s *Session) SetState(state proto.State, reason string) StateTransition {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := StateTransition{From: s.state, To: state, At: time.Now().UTC(), Reason: reason}
	s.state = state
	s.transitions = append(s.transitions, t)
	if len(s.transitions) > maxTransitions {
		s.transitions = s.transitions[len(s.transitions)-maxTransitions:]
	}
	return t
}

// Transitions returns the most recent state changes, oldest first.
func (s *Session) Transitions() []StateTransition {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]StateTransition(nil), s.transitions...)
}

// AddNotice queues a message for delivery on the user's next interaction.
func (s *Session) AddNotice(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, msg)
	s.touch()
}

// TakeNotices returns and clears the queued notices.
func (s *Session) TakeNotices() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.notices
	s.notices = nil
	return out
}

func (s *Session) UpdatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

func (s *Session) touch() {
	s.updatedAt = time.Now().UTC()
}

// Snapshot is the persisted form of a session. An active driver is stored as its idle link.
type Snapshot struct {
	UserID    int64        `json:"user_id"`
	ChatID    int64        `json:"chat_id"`
	Link      string       `json:"link"`
	Prefs     *prefs.Cache `json:"prefs"`
	Notices   []string     `json:"notices,omitempty"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func (s *Session) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	link := s.link
	if s.driver != nil {
		link = s.driver.IdleLink()
	}
	return &Snapshot{
		UserID:    s.UserID,
		ChatID:    s.chatID,
		Link:      link,
		Prefs:     s.prefs,
		Notices:   append([]string(nil), s.notices...),
		UpdatedAt: s.updatedAt,
	}
}

// FromSnapshot rebuilds an idle session.
func FromSnapshot(snap *Snapshot) *Session {
	s := New(snap.UserID, snap.ChatID)
	s.link = snap.Link
	if snap.Prefs != nil {
		s.prefs = snap.Prefs
	}
	s.notices = append([]string(nil), snap.Notices...)
	s.updatedAt = snap.UpdatedAt
	return s
}

// Reset tears the session down to a fresh state: driver released, link and preferences cleared.
func (s *Session) Reset() error {
	err := s.Release()
	s.mu.Lock()
	s.link = ""
	s.notices = nil
	s.state = StateIdle
	s.transitions = nil
	s.mu.Unlock()
	s.prefs.Clear()
	return err
}
