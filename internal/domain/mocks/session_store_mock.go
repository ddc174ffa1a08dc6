package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/fairyhunter13/interview-coach/internal/domain"
)

// MockSessionStore is a mock type for the SessionStore type
type MockSessionStore struct {
	mock.Mock
}

// Get provides a mock function with given fields: ctx, userID, interviewID
func (_m *MockSessionStore) Get(ctx domain.Context, userID, interviewID string) ([]byte, error) {
	ret := _m.Called(ctx, userID, interviewID)
	var r0 []byte
	if rf, ok := ret.Get(0).(func(domain.Context, string, string) []byte); ok {
		r0 = rf(ctx, userID, interviewID)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).([]byte)
	}
	return r0, ret.Error(1)
}

// Upsert provides a mock function with given fields: ctx, userID, interviewID, blob
func (_m *MockSessionStore) Upsert(ctx domain.Context, userID, interviewID string, blob []byte) error {
	ret := _m.Called(ctx, userID, interviewID, blob)
	return ret.Error(0)
}

// Delete provides a mock function with given fields: ctx, userID, interviewID
func (_m *MockSessionStore) Delete(ctx domain.Context, userID, interviewID string) error {
	ret := _m.Called(ctx, userID, interviewID)
	return ret.Error(0)
}

var _ domain.SessionStore = (*MockSessionStore)(nil)
