package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/pageza/mealsense/backend/internal/model"
)

// MockFoodLookup is a mock implementation of the FoodLookup interface
type MockFoodLookup struct {
	mock.Mock
}

func (m *MockFoodLookup) Lookup(ctx context.Context, name string) (*model.Food, bool) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Bool(1)
	}
	return args.Get(0).(*model.Food), args.Bool(1)
}
