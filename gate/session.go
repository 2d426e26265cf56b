package gate

import "fmt"

// State is the lifecycle state of a Session.
type State int

const (
	Pending State = iota
	Firing
	Fired
	Cancelled
	Failed
)

var stateNames = []string{
	Pending:   "pending",
	Firing:    "firing",
	Fired:     "fired",
	Cancelled: "cancelled",
	Failed:    "failed",
}

func (s State) String() string {
	if int(s) < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether no further transition can happen from s.
func (s State) Terminal() bool {
	return s == Fired || s == Cancelled || s == Failed
}

// action is a side effect requested by a Session transition. The Session
// itself never performs I/O, the event loop executes the actions.
type action int

const (
	lookupRoot action = iota + 1
	fire
)

// session is the readiness state of one pick. It is only ever touched by the
// event loop goroutine of its Pick.
type session struct {
	authToken     string
	clientReady   bool
	pickerReady   bool
	rootFolderID  string
	rootRequested bool
	state         State
	err           error
}

func (s *session) authorized(token string) []action {
	if s.state != Pending || s.authToken != "" || token == "" {
		return nil
	}
	s.authToken = token
	return s.advance()
}

func (s *session) clientLoaded() []action {
	if s.state != Pending || s.clientReady {
		return nil
	}
	s.clientReady = true
	return s.advance()
}

func (s *session) pickerLoaded() []action {
	if s.state != Pending || s.pickerReady {
		return nil
	}
	s.pickerReady = true
	return s.advance()
}

func (s *session) rootResolved(id string) []action {
	if s.state != Pending || s.rootFolderID != "" || id == "" {
		return nil
	}
	s.rootFolderID = id
	return s.advance()
}

// advance is the tryAdvance check: it is safe to call any number of times.
func (s *session) advance() []action {
	if s.state != Pending {
		return nil
	}
	var actions []action
	if s.authToken != "" && s.clientReady && !s.rootRequested && s.rootFolderID == "" {
		s.rootRequested = true
		actions = append(actions, lookupRoot)
	}
	if s.ready() {
		s.state = Firing
		actions = append(actions, fire)
	}
	return actions
}

func (s *session) ready() bool {
	return s.authToken != "" && s.rootFolderID != "" && s.pickerReady
}

// fail moves a live session to Failed. It returns false when the session
// already reached a terminal state.
func (s *session) fail(err error) bool {
	if s.state.Terminal() {
		return false
	}
	s.state = Failed
	s.err = err
	return true
}

func (s *session) cancel(err error) bool {
	if s.state.Terminal() {
		return false
	}
	s.state = Cancelled
	s.err = err
	return true
}

// done marks the end of the fire action. Only a Firing session can be done.
func (s *session) done() bool {
	if s.state != Firing {
		return false
	}
	s.state = Fired
	return true
}
