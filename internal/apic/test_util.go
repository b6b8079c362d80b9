package apic

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockPlatformClient mocks the PlatformClientInterface
type MockPlatformClient struct {
	mock.Mock
}

func (m *MockPlatformClient) Login(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockPlatformClient) GetDraftAPI(ctx context.Context, token, id, version string) ([]byte, bool, error) {
	args := m.Called(ctx, token, id, version)
	doc, _ := args.Get(0).([]byte)
	return doc, args.Bool(1), args.Error(2)
}

func (m *MockPlatformClient) CreateDraftAPI(ctx context.Context, token string, doc []byte) error {
	args := m.Called(ctx, token, doc)
	return args.Error(0)
}

func (m *MockPlatformClient) UpdateDraftAPI(ctx context.Context, token, id, version string, doc []byte) error {
	args := m.Called(ctx, token, id, version, doc)
	return args.Error(0)
}

func (m *MockPlatformClient) ValidateDraftAPI(ctx context.Context, token string, doc []byte) error {
	args := m.Called(ctx, token, doc)
	return args.Error(0)
}

func (m *MockPlatformClient) GetDraftProduct(ctx context.Context, token, name, version string) ([]byte, bool, error) {
	args := m.Called(ctx, token, name, version)
	doc, _ := args.Get(0).([]byte)
	return doc, args.Bool(1), args.Error(2)
}

func (m *MockPlatformClient) CreateDraftProduct(ctx context.Context, token string, doc []byte) error {
	args := m.Called(ctx, token, doc)
	return args.Error(0)
}

func (m *MockPlatformClient) UpdateDraftProduct(ctx context.Context, token, name, version string, doc []byte) error {
	args := m.Called(ctx, token, name, version, doc)
	return args.Error(0)
}

func (m *MockPlatformClient) PublishProduct(ctx context.Context, token string, doc []byte) error {
	args := m.Called(ctx, token, doc)
	return args.Error(0)
}

// MockRemoteAPIStore mocks the RemoteAPIStore
type MockRemoteAPIStore struct {
	mock.Mock
}

func (m *MockRemoteAPIStore) Login(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockRemoteAPIStore) Exists(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockRemoteAPIStore) Fetch(ctx context.Context, id string) ([]byte, error) {
	args := m.Called(ctx, id)
	doc, _ := args.Get(0).([]byte)
	return doc, args.Error(1)
}

func (m *MockRemoteAPIStore) Create(ctx context.Context, id string, doc []byte) error {
	args := m.Called(ctx, id, doc)
	return args.Error(0)
}

func (m *MockRemoteAPIStore) Update(ctx context.Context, id string, doc []byte) error {
	args := m.Called(ctx, id, doc)
	return args.Error(0)
}

func (m *MockRemoteAPIStore) Validate(ctx context.Context, doc []byte) error {
	args := m.Called(ctx, doc)
	return args.Error(0)
}

func (m *MockRemoteAPIStore) FetchProduct(ctx context.Context, name string) ([]byte, bool, error) {
	args := m.Called(ctx, name)
	doc, _ := args.Get(0).([]byte)
	return doc, args.Bool(1), args.Error(2)
}

func (m *MockRemoteAPIStore) SaveProduct(ctx context.Context, name string, doc []byte) error {
	args := m.Called(ctx, name, doc)
	return args.Error(0)
}

func (m *MockRemoteAPIStore) Publish(ctx context.Context, doc []byte) error {
	args := m.Called(ctx, doc)
	return args.Error(0)
}
