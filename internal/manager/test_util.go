package manager

import (
	"context"

	"github.com/plantarium-platform/apisync-go/internal/oracle"
	"github.com/plantarium-platform/apisync-go/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockServiceLoader is a mock implementation of ServiceLoaderInterface.
type MockServiceLoader struct {
	mock.Mock
}

func (m *MockServiceLoader) LoadServices(path string) ([]models.ServiceSpec, error) {
	args := m.Called(path)
	services, _ := args.Get(0).([]models.ServiceSpec)
	return services, args.Error(1)
}

// MockServiceReconciler is a mock implementation of ServiceReconcilerInterface.
type MockServiceReconciler struct {
	mock.Mock
}

func (m *MockServiceReconciler) Reconcile(ctx context.Context, services []models.ServiceSpec, plan oracle.Plan) models.Summary {
	args := m.Called(ctx, services, plan)
	return args.Get(0).(models.Summary)
}

// MockProductAssembler is a mock implementation of ProductAssemblerInterface.
type MockProductAssembler struct {
	mock.Mock
}

func (m *MockProductAssembler) Assemble(ctx context.Context, processedIDs []string) ([]string, error) {
	args := m.Called(ctx, processedIDs)
	ids, _ := args.Get(0).([]string)
	return ids, args.Error(1)
}
