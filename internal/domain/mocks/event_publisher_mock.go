package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/fairyhunter13/interview-coach/internal/domain"
)

// MockEventPublisher is a mock type for the EventPublisher type
type MockEventPublisher struct {
	mock.Mock
}

// PublishInterviewCompleted provides a mock function with given fields: ctx, ev
func (_m *MockEventPublisher) PublishInterviewCompleted(ctx domain.Context, ev domain.InterviewCompletedEvent) error {
	ret := _m.Called(ctx, ev)
	return ret.Error(0)
}

var _ domain.EventPublisher = (*MockEventPublisher)(nil)
