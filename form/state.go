package form

import "sync"

const (
	DefaultDurationMinutes = 5
	DefaultTemperature     = 0.7
	DefaultTone            = ToneConversational
	DefaultFormat          = FormatLinkedIn
)

// Values is a snapshot of the form.
type Values struct {
	Topic           string
	DurationMinutes int
	Tone            Tone
	Format          Format
	Temperature     float64
	Script          string
	Busy            bool
}

// State holds the values of one form session and notifies subscribers on
// every change. Numeric fields are stored as given; range hints belong to
// the view.
type State struct {
	mutex       sync.RWMutex
	values      Values
	inFlight    int
	subscribers map[int]func(Values)
	nextID      int

	// notifications go out in mutation order
	version   uint64
	delivered uint64
	turn      *sync.Cond
}

func NewState() *State {
	return &State{
		values: Values{
			DurationMinutes: DefaultDurationMinutes,
			Tone:            DefaultTone,
			Format:          DefaultFormat,
			Temperature:     DefaultTemperature,
		},
		subscribers: make(map[int]func(Values)),
		turn:        sync.NewCond(&sync.Mutex{}),
	}
}

// Subscribe registers fn to receive a snapshot after each change, in the
// order the changes were made. fn must not modify the state.
// The returned func removes the subscription.
func (s *State) Subscribe(fn func(Values)) func() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	id := s.nextID
	s.nextID++
	s.subscribers[id] = fn
	return func() {
		s.mutex.Lock()
		defer s.mutex.Unlock()
		delete(s.subscribers, id)
	}
}

func (s *State) Snapshot() Values {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.values
}

func (s *State) Topic() string        { return s.Snapshot().Topic }
func (s *State) DurationMinutes() int { return s.Snapshot().DurationMinutes }
func (s *State) Tone() Tone           { return s.Snapshot().Tone }
func (s *State) Format() Format       { return s.Snapshot().Format }
func (s *State) Temperature() float64 { return s.Snapshot().Temperature }
func (s *State) Script() string       { return s.Snapshot().Script }
func (s *State) Busy() bool           { return s.Snapshot().Busy }

func (s *State) SetTopic(topic string) {
	s.update(func(v *Values) { v.Topic = topic })
}

func (s *State) SetDurationMinutes(minutes int) {
	s.update(func(v *Values) { v.DurationMinutes = minutes })
}

func (s *State) SetTemperature(temperature float64) {
	s.update(func(v *Values) { v.Temperature = temperature })
}

func (s *State) SetScript(script string) {
	s.update(func(v *Values) { v.Script = script })
}

func (s *State) SetTone(tone Tone) error {
	if !tone.Valid() {
		return ErrInvalidTone
	}
	s.update(func(v *Values) { v.Tone = tone })
	return nil
}

func (s *State) SetFormat(format Format) error {
	if !format.Valid() {
		return ErrInvalidFormat
	}
	s.update(func(v *Values) { v.Format = format })
	return nil
}

// begin marks one more request as outstanding and returns the snapshot the
// request is built from.
func (s *State) begin() Values {
	var snapshot Values
	s.update(func(v *Values) {
		s.inFlight++
		v.Busy = true
		snapshot = *v
	})
	return snapshot
}

// finish marks one request as completed; busy clears with the last one.
func (s *State) finish() {
	s.update(func(v *Values) {
		if s.inFlight > 0 {
			s.inFlight--
		}
		v.Busy = s.inFlight > 0
	})
}

func (s *State) update(mutate func(v *Values)) {
	s.mutex.Lock()
	mutate(&s.values)
	s.version++
	version := s.version
	snapshot := s.values
	subscribers := make([]func(Values), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subscribers = append(subscribers, fn)
	}
	s.mutex.Unlock()

	s.turn.L.Lock()
	for s.delivered != version-1 {
		s.turn.Wait()
	}
	s.turn.L.Unlock()

	for _, fn := range subscribers {
		fn(snapshot)
	}

	s.turn.L.Lock()
	s.delivered = version
	s.turn.Broadcast()
	s.turn.L.Unlock()
}
