package holder

import (
	"Scripter/core"
	"Scripter/form"
	"Scripter/lib/sl"
	"Scripter/storage"
	"log/slog"
	"sync"
)

// Session is one mounted form, bound to a chat.
type Session struct {
	ChatId     int64
	State      *form.State
	Controller *form.Controller

	mutex         sync.Mutex
	messageId     int
	unsubscribers []func()
}

// Subscribe forwards state changes to fn until the session is unmounted.
func (s *Session) Subscribe(fn func(form.Values)) {
	unsubscribe := s.State.Subscribe(fn)
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.unsubscribers = append(s.unsubscribers, unsubscribe)
}

// FormMessage returns the id of the message rendering the form, 0 if none.
func (s *Session) FormMessage() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.messageId
}

func (s *Session) SetFormMessage(id int) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.messageId = id
}

func (s *Session) teardown() {
	s.mutex.Lock()
	unsubscribers := s.unsubscribers
	s.unsubscribers = nil
	s.mutex.Unlock()

	for _, unsubscribe := range unsubscribers {
		unsubscribe()
	}
	s.Controller.CancelAll()
}

type SessionManager struct {
	service    core.ScriptService
	searchTool string
	journal    storage.Journal
	log        *slog.Logger
	sessions   map[int64]*Session
	mutex      sync.RWMutex
}

func NewSessionManager(service core.ScriptService, searchTool string, journal storage.Journal, log *slog.Logger) *SessionManager {
	return &SessionManager{
		service:    service,
		searchTool: searchTool,
		journal:    journal,
		log:        log,
		sessions:   make(map[int64]*Session),
	}
}

// Mount creates a form with default values for the chat, replacing any
// previous one.
func (sm *SessionManager) Mount(chatId int64) *Session {
	state := form.NewState()
	opts := []form.Option{form.WithSession(chatId)}
	if sm.journal != nil {
		opts = append(opts, form.WithJournal(sm.journal))
	}
	session := &Session{
		ChatId:     chatId,
		State:      state,
		Controller: form.NewController(state, sm.service, sm.searchTool, sm.log, opts...),
	}

	sm.mutex.Lock()
	previous := sm.sessions[chatId]
	sm.sessions[chatId] = session
	sm.mutex.Unlock()

	if previous != nil {
		previous.teardown()
	}
	sm.log.With(sl.Chat(chatId)).Debug("form mounted")
	return session
}

func (sm *SessionManager) Get(chatId int64) (*Session, bool) {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	session, ok := sm.sessions[chatId]
	return session, ok
}

// Unmount drops the chat's form and cancels its in-flight requests.
func (sm *SessionManager) Unmount(chatId int64) bool {
	sm.mutex.Lock()
	session, ok := sm.sessions[chatId]
	delete(sm.sessions, chatId)
	sm.mutex.Unlock()

	if !ok {
		return false
	}
	session.teardown()
	sm.log.With(sl.Chat(chatId)).Debug("form unmounted")
	return true
}

func (sm *SessionManager) Close() error {
	sm.mutex.Lock()
	sessions := sm.sessions
	sm.sessions = make(map[int64]*Session)
	sm.mutex.Unlock()

	for _, session := range sessions {
		session.teardown()
	}
	if sm.journal != nil {
		if err := sm.journal.Close(); err != nil {
			sm.log.Error("closing journal", sl.Err(err))
			return err
		}
	}
	return nil
}
