package nudge

import (
	"context"
	"errors"
	"testing"

	"github.com/medtrack/adherence-engine/internal/fault"
)

type memLog struct {
	created []*Nudge
	err     error
}

func (m *memLog) Create(_ context.Context, n *Nudge) error {
	if m.err != nil {
		return m.err
	}
	m.created = append(m.created, n)
	return nil
}

type allowAuthz struct{ err error }

func (a *allowAuthz) CanViewPatient(context.Context, string, string) error { return a.err }

type memSink struct {
	nudges []*Nudge
	err    error
}

func (m *memSink) NudgeRequested(_ context.Context, n *Nudge) error {
	if m.err != nil {
		return m.err
	}
	m.nudges = append(m.nudges, n)
	return nil
}

func TestSendQueuesNudge(t *testing.T) {
	log := &memLog{}
	sink := &memSink{}
	s := NewService(log, &allowAuthz{}, sink, nil)

	n, err := s.Send(context.Background(), "d1", "p1", "dose-3", "Take your evening insulin")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if n.Status != StatusQueued || n.Channel != ChannelSMS {
		t.Errorf("nudge %+v", n)
	}
	if len(log.created) != 1 || len(sink.nudges) != 1 {
		t.Errorf("logged %d, published %d, want 1 and 1", len(log.created), len(sink.nudges))
	}
}

func TestSendDefaultsMessage(t *testing.T) {
	log := &memLog{}
	s := NewService(log, &allowAuthz{}, nil, nil)

	n, err := s.Send(context.Background(), "d1", "p1", "", "  ")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if n.Message != DefaultMessage {
		t.Errorf("message %q, want default", n.Message)
	}
}

func TestSendRequiresAssignment(t *testing.T) {
	authz := &allowAuthz{err: fault.Authorization("not assigned")}
	s := NewService(&memLog{}, authz, nil, nil)

	_, err := s.Send(context.Background(), "d1", "p1", "", "hello")
	if fault.KindOf(err) != fault.KindAuthorization {
		t.Fatalf("got %v, want authorization", err)
	}
}

func TestSendEventFailureStillLogs(t *testing.T) {
	log := &memLog{}
	sink := &memSink{err: errors.New("broker down")}
	s := NewService(log, &allowAuthz{}, sink, nil)

	if _, err := s.Send(context.Background(), "d1", "p1", "", "hi"); err != nil {
		t.Fatalf("publish failure leaked: %v", err)
	}
	if len(log.created) != 1 {
		t.Errorf("nudge not logged")
	}
}
