package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/fairyhunter13/interview-coach/internal/domain"
)

// MockCompleter is a mock type for the Completer type
type MockCompleter struct {
	mock.Mock
}

// Complete provides a mock function with given fields: ctx, req
func (_m *MockCompleter) Complete(ctx domain.Context, req domain.CompletionRequest) (string, error) {
	ret := _m.Called(ctx, req)
	var r0 string
	if rf, ok := ret.Get(0).(func(domain.Context, domain.CompletionRequest) string); ok {
		r0 = rf(ctx, req)
	} else {
		r0 = ret.String(0)
	}
	return r0, ret.Error(1)
}

var _ domain.Completer = (*MockCompleter)(nil)
