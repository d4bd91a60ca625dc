package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/abuFahad-vp/care-connect-backend/internal/domain"
	"github.com/abuFahad-vp/care-connect-backend/internal/presence"
)

type fakeConn struct {
	mu     sync.Mutex
	sent   []string
	broken bool
}

func (f *fakeConn) Send(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.broken {
		return errors.New("connection reset")
	}
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeConn) Close() error { return nil }

func (f *fakeConn) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

type fakeDirectory struct {
	volunteers   []string
	coordinators []string
}

func (f *fakeDirectory) ListVolunteerEmails(context.Context) ([]string, error) {
	return f.volunteers, nil
}

func (f *fakeDirectory) ListCoordinatorEmails(context.Context) ([]string, error) {
	return f.coordinators, nil
}

type captureSink struct {
	mu     sync.Mutex
	events []string
}

func (s *captureSink) Publish(eventType, recipient string, _ any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, eventType+"→"+recipient)
}

func sampleRequest() domain.ServiceRequest {
	return domain.ServiceRequest{
		ID:         "svc-1",
		ElderEmail: "e1@example.com",
		ElderProfile: domain.Profile{
			Email: "e1@example.com", Role: domain.RoleElder, FullName: "Elder One",
		},
		Status:             domain.ServicePending,
		Deadline:           time.Now().Add(time.Minute),
		NotifiedVolunteers: []string{"v1@example.com", "v2@example.com"},
	}
}

func TestBroadcastNewRequest_OnlyConnectedVolunteers(t *testing.T) {
	registry := presence.NewRegistry(zap.NewNop())
	dir := &fakeDirectory{volunteers: []string{"v1@example.com", "v2@example.com", "v3@example.com"}}
	f := NewFanout(registry, dir, zap.NewNop())

	v1 := &fakeConn{}
	v3 := &fakeConn{}
	registry.Register("v1@example.com", v1)
	registry.Register("v3@example.com", v3)
	// v2 不在线

	notified := f.BroadcastNewRequest(sampleRequest())
	assert.Equal(t, []string{"v1@example.com", "v3@example.com"}, notified)

	require.Len(t, v1.messages(), 1)
	var event NewServiceRequestEvent
	require.NoError(t, json.Unmarshal([]byte(v1.messages()[0]), &event))
	assert.Equal(t, domain.EventNewServiceRequest, event.Type)
	assert.Equal(t, "svc-1", event.ServiceID)
	assert.Equal(t, "e1@example.com", event.ElderProfile.Email)
}

func TestPush_FailedSendRemovesRecipient(t *testing.T) {
	registry := presence.NewRegistry(zap.NewNop())
	f := NewFanout(registry, &fakeDirectory{}, zap.NewNop())

	broken := &fakeConn{broken: true}
	registry.Register("gone@example.com", broken)

	ok := f.Push("gone@example.com", domain.EventServiceMessage, ServiceMessageEvent{Type: domain.EventServiceMessage})
	assert.False(t, ok)
	// 失败的接收方被摘除，后续扇出直接跳过且不报错
	assert.False(t, registry.Connected("gone@example.com"))
	assert.False(t, f.Push("gone@example.com", domain.EventServiceMessage, ServiceMessageEvent{}))
}

func TestBroadcast_OneFailureDoesNotAbortOthers(t *testing.T) {
	registry := presence.NewRegistry(zap.NewNop())
	dir := &fakeDirectory{volunteers: []string{"bad@example.com", "good@example.com"}}
	f := NewFanout(registry, dir, zap.NewNop())

	registry.Register("bad@example.com", &fakeConn{broken: true})
	good := &fakeConn{}
	registry.Register("good@example.com", good)

	notified := f.BroadcastNewRequest(sampleRequest())
	assert.Equal(t, []string{"good@example.com"}, notified)
	assert.Len(t, good.messages(), 1)
}

func TestAccepted_NotifiesBothPartiesAndCoordinators(t *testing.T) {
	registry := presence.NewRegistry(zap.NewNop())
	dir := &fakeDirectory{coordinators: []string{"admin@example.com"}}
	f := NewFanout(registry, dir, zap.NewNop())

	elder := &fakeConn{}
	winner := &fakeConn{}
	admin := &fakeConn{}
	registry.Register("e1@example.com", elder)
	registry.Register("v1@example.com", winner)
	registry.Register("admin@example.com", admin)

	req := sampleRequest()
	req.Status = domain.ServiceAccepted
	req.VolunteerEmail = "v1@example.com"
	f.Accepted(req, domain.Profile{Email: "v1@example.com", Role: domain.RoleVolunteer})

	require.Len(t, elder.messages(), 1)
	var elderEvent ServiceMessageEvent
	require.NoError(t, json.Unmarshal([]byte(elder.messages()[0]), &elderEvent))
	assert.Equal(t, domain.MsgRequestAccepted, elderEvent.Message)
	require.NotNil(t, elderEvent.VolunteerProfile)
	assert.Equal(t, "v1@example.com", elderEvent.VolunteerProfile.Email)

	require.Len(t, winner.messages(), 1)
	var volEvent ServiceMessageEvent
	require.NoError(t, json.Unmarshal([]byte(winner.messages()[0]), &volEvent))
	assert.Equal(t, domain.MsgElderRequestAccepted, volEvent.Message)

	assert.Len(t, admin.messages(), 1)
}

func TestExpired_NotifiesElderAndNotifiedVolunteers(t *testing.T) {
	registry := presence.NewRegistry(zap.NewNop())
	f := NewFanout(registry, &fakeDirectory{}, zap.NewNop())

	elder := &fakeConn{}
	v1 := &fakeConn{}
	registry.Register("e1@example.com", elder)
	registry.Register("v1@example.com", v1)
	// v2 已离线：跳过即可，不报错

	f.Expired(sampleRequest())
	assert.Len(t, elder.messages(), 1)
	assert.Len(t, v1.messages(), 1)

	var event ServiceMessageEvent
	require.NoError(t, json.Unmarshal([]byte(elder.messages()[0]), &event))
	assert.Equal(t, domain.MsgExpired, event.Message)
	assert.Equal(t, string(domain.ServiceAborted), event.Status)
}

func TestUnassigned_BothSides(t *testing.T) {
	registry := presence.NewRegistry(zap.NewNop())
	f := NewFanout(registry, &fakeDirectory{}, zap.NewNop())

	elder := &fakeConn{}
	vol := &fakeConn{}
	registry.Register("e1@example.com", elder)
	registry.Register("v1@example.com", vol)

	f.Unassigned("e1@example.com", "v1@example.com")
	assert.Len(t, elder.messages(), 1)
	assert.Len(t, vol.messages(), 1)

	// 未配对时 volunteer 为空：只通知 elder
	f.Unassigned("e1@example.com", "")
	assert.Len(t, elder.messages(), 2)
}

func TestSinks_SeeEveryDelivery(t *testing.T) {
	registry := presence.NewRegistry(zap.NewNop())
	sink := &captureSink{}
	f := NewFanout(registry, &fakeDirectory{}, zap.NewNop(), sink)

	registry.Register("v1@example.com", &fakeConn{})
	f.Stale("v1@example.com", "svc-1")

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, []string{domain.EventServiceMessage + "→v1@example.com"}, sink.events)
}
