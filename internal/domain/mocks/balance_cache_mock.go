package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/fairyhunter13/interview-coach/internal/domain"
)

// MockBalanceCache is a mock type for the BalanceCache type
type MockBalanceCache struct {
	mock.Mock
}

// Get provides a mock function with given fields: ctx, userID
func (_m *MockBalanceCache) Get(ctx domain.Context, userID string) (int64, bool, error) {
	ret := _m.Called(ctx, userID)
	return ret.Get(0).(int64), ret.Bool(1), ret.Error(2)
}

// Set provides a mock function with given fields: ctx, userID, balance
func (_m *MockBalanceCache) Set(ctx domain.Context, userID string, balance int64) error {
	ret := _m.Called(ctx, userID, balance)
	return ret.Error(0)
}

var _ domain.BalanceCache = (*MockBalanceCache)(nil)
