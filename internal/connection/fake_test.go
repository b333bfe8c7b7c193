package connection

import (
	"encoding/json"
	"errors"
	"time"
)

// fakeTransport records every Open and hands back controllable sessions.
type fakeTransport struct {
	sessions []*fakeSession
}

func (f *fakeTransport) Open(token string, h Handler) Session {
	s := &fakeSession{token: token, handler: h}
	f.sessions = append(f.sessions, s)
	return s
}

func (f *fakeTransport) last() *fakeSession {
	if len(f.sessions) == 0 {
		return nil
	}
	return f.sessions[len(f.sessions)-1]
}

func (f *fakeTransport) live() int {
	n := 0
	for _, s := range f.sessions {
		if !s.closed {
			n++
		}
	}
	return n
}

type emitted struct {
	event   string
	payload any
}

type fakeSession struct {
	token    string
	handler  Handler
	emitted  []emitted
	closed    bool
	failEmit  bool
	failClose bool
}

func (s *fakeSession) Emit(event string, payload any) error {
	if s.failEmit {
		return errors.New("write failed")
	}
	s.emitted = append(s.emitted, emitted{event, payload})
	return nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	if s.failClose {
		return errors.New("close failed")
	}
	return nil
}

func (s *fakeSession) count(event string) int {
	n := 0
	for _, e := range s.emitted {
		if e.event == event {
			n++
		}
	}
	return n
}

func (s *fakeSession) open() { s.handler.OnOpen() }

func (s *fakeSession) fail(err error) {
	s.closed = true
	s.handler.OnOpenError(err)
}

func (s *fakeSession) drop(reason CloseReason) {
	s.closed = true
	s.handler.OnClose(reason)
}

func (s *fakeSession) push(name, data string) {
	s.handler.OnEvent(name, json.RawMessage(data), time.Time{})
}
