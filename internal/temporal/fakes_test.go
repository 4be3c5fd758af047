package temporal

import (
	"context"
	"database/sql"
	"sync"

	"uberfix/internal/domain"
	"uberfix/internal/notify"
)

type fakeStore struct {
	mu            sync.Mutex
	requests      map[string]domain.MaintenanceRequest
	notifications []domain.Notification
}

func newFakeStore(reqs ...domain.MaintenanceRequest) *fakeStore {
	s := &fakeStore{requests: make(map[string]domain.MaintenanceRequest)}
	for _, r := range reqs {
		s.requests[r.ID] = r
	}
	return s
}

func (f *fakeStore) GetRequest(_ context.Context, requestID string) (domain.MaintenanceRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[requestID]
	if !ok {
		return domain.MaintenanceRequest{}, sql.ErrNoRows
	}
	return req, nil
}

func (f *fakeStore) InsertNotification(_ context.Context, n domain.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifications = append(f.notifications, n)
	return nil
}

func (f *fakeStore) setStage(requestID string, stage domain.WorkflowStage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req := f.requests[requestID]
	req.WorkflowStage = stage
	req.Status = domain.LegacyStatusFor(stage)
	f.requests[requestID] = req
}

func (f *fakeStore) recorded() []domain.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Notification(nil), f.notifications...)
}

type fakeSender struct {
	mu       sync.Mutex
	messages []notify.Message
	err      error
}

func (s *fakeSender) Send(_ context.Context, msg notify.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.messages = append(s.messages, msg)
	return "msg-" + msg.RequestID, nil
}

func (s *fakeSender) sent() []notify.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notify.Message(nil), s.messages...)
}

type fakeMetrics struct {
	mu       sync.Mutex
	outcomes map[domain.NotificationStatus]int
}

func (m *fakeMetrics) ObserveNotification(_ domain.NotificationChannel, status domain.NotificationStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outcomes == nil {
		m.outcomes = make(map[domain.NotificationStatus]int)
	}
	m.outcomes[status]++
}

func testRequest(id string, stage domain.WorkflowStage) domain.MaintenanceRequest {
	return domain.MaintenanceRequest{
		ID:            id,
		Title:         "Broken AC unit",
		CustomerName:  "Omar",
		CustomerPhone: "+20 100-123-4567",
		Priority:      domain.PriorityUrgent,
		WorkflowStage: stage,
		Status:        domain.LegacyStatusFor(stage),
	}
}
