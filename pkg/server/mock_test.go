package server

import (
	"context"

	"github.com/raterudder/metersync/pkg/job"
	"github.com/raterudder/metersync/pkg/types"
	"github.com/stretchr/testify/mock"
)

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Run(ctx context.Context) job.Result {
	args := m.Called(ctx)
	return args.Get(0).(job.Result)
}

func (m *mockRunner) Last() (job.Result, bool) {
	args := m.Called()
	return args.Get(0).(job.Result), args.Bool(1)
}

type mockLoader struct {
	mock.Mock
}

func (m *mockLoader) Load(ctx context.Context) (types.Dataset, error) {
	args := m.Called(ctx)
	return args.Get(0).(types.Dataset), args.Error(1)
}
