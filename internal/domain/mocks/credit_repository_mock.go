package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/fairyhunter13/interview-coach/internal/domain"
)

// MockCreditRepository is a mock type for the CreditRepository type
type MockCreditRepository struct {
	mock.Mock
}

// Balance provides a mock function with given fields: ctx, userID
func (_m *MockCreditRepository) Balance(ctx domain.Context, userID string) (int64, error) {
	ret := _m.Called(ctx, userID)
	return ret.Get(0).(int64), ret.Error(1)
}

// Spend provides a mock function with given fields: ctx, userID, amount, feature, description
func (_m *MockCreditRepository) Spend(ctx domain.Context, userID string, amount int64, feature, description string) (domain.CreditTransaction, error) {
	ret := _m.Called(ctx, userID, amount, feature, description)
	return ret.Get(0).(domain.CreditTransaction), ret.Error(1)
}

// Refund provides a mock function with given fields: ctx, userID, amount, reason
func (_m *MockCreditRepository) Refund(ctx domain.Context, userID string, amount int64, reason string) (domain.CreditTransaction, error) {
	ret := _m.Called(ctx, userID, amount, reason)
	return ret.Get(0).(domain.CreditTransaction), ret.Error(1)
}

var _ domain.CreditRepository = (*MockCreditRepository)(nil)
