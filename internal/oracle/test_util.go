package oracle

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockRevisionHistory is a mock implementation of RevisionHistory.
type MockRevisionHistory struct {
	mock.Mock
}

func (m *MockRevisionHistory) CurrentRevision(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockRevisionHistory) Diff(ctx context.Context, from, to string) ([]string, error) {
	args := m.Called(ctx, from, to)
	paths, _ := args.Get(0).([]string)
	return paths, args.Error(1)
}

// MockChangeOracle is a mock implementation of ChangeOracleInterface.
type MockChangeOracle struct {
	mock.Mock
}

func (m *MockChangeOracle) ChangedArtifacts(ctx context.Context, marker string) ChangeSet {
	args := m.Called(ctx, marker)
	return args.Get(0).(ChangeSet)
}

func (m *MockChangeOracle) Plan(ctx context.Context, marker string, force bool) Plan {
	args := m.Called(ctx, marker, force)
	return args.Get(0).(Plan)
}
