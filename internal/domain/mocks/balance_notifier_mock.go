package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/fairyhunter13/interview-coach/internal/domain"
)

// MockBalanceNotifier is a mock type for the BalanceNotifier type
type MockBalanceNotifier struct {
	mock.Mock
}

// NotifyBalance provides a mock function with given fields: ctx, userID, balance
func (_m *MockBalanceNotifier) NotifyBalance(ctx domain.Context, userID string, balance int64) error {
	ret := _m.Called(ctx, userID, balance)
	return ret.Error(0)
}

var _ domain.BalanceNotifier = (*MockBalanceNotifier)(nil)
