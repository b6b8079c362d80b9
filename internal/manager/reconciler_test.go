package manager

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Flaque/filet"
	mapset "github.com/deckarep/golang-set"
	"github.com/plantarium-platform/apisync-go/internal/apic"
	"github.com/plantarium-platform/apisync-go/internal/oracle"
	"github.com/plantarium-platform/apisync-go/internal/patcher"
	"github.com/plantarium-platform/apisync-go/internal/schema"
	"github.com/plantarium-platform/apisync-go/internal/storage"
	"github.com/plantarium-platform/apisync-go/internal/storage/repos"
	"github.com/plantarium-platform/apisync-go/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const remoteCustomerAPI = `openapi: 3.0.0
info:
  title: Customer Service
  x-ibm-name: customer-service
x-ibm-configuration:
  assembly:
    execute:
      - invoke:
          target-url: https://old.example.com/customers
components:
  schemas:
    CustomerServiceRequest:
      type: object
      properties:
        id:
          type: string
paths: {}
`

const patchedCustomerAPI = `openapi: 3.0.0
info:
  title: Customer Service
  x-ibm-name: customer-service
x-ibm-configuration:
  assembly:
    execute:
      - invoke:
          target-url: https://x/customers
components:
  schemas:
    CustomerServiceRequest:
      type: object
      properties:
        name:
          type: string
paths: {}
`

const customerSchemaJSON = `{"properties": {"name": {"type": "string"}}, "type": "object"}`

var fullPlan = oracle.Plan{Mode: oracle.ModeFull, Reason: "forced"}

func writeSchema(t *testing.T, root, rel, content string) string {
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestReconciler(t *testing.T, store apic.RemoteAPIStore, repoRoot string) (*ServiceReconciler, *storage.Workspace) {
	ws := storage.GetTestWorkspace(t, "run1")
	reconciler := NewServiceReconciler(store,
		patcher.NewPatcher(patcher.DefaultContainer(), patcher.MatchFirst),
		schema.NewTranslator(),
		repos.NewArtifactRepository(ws),
		repos.NewBackupRepository(ws),
		patcher.DefaultTemplate(), "1.0.0", repoRoot, zap.NewNop())
	return reconciler, ws
}

func TestReconcile_CreatesMissingAPI(t *testing.T) {
	defer filet.CleanUp(t)
	dir := filet.TmpDir(t, "")
	schemaPath := writeSchema(t, dir, "c.json", customerSchemaJSON)

	store := new(apic.MockRemoteAPIStore)
	var created []byte
	store.On("Exists", mock.Anything, "customer-service").Return(false, nil)
	store.On("Validate", mock.Anything, mock.Anything).Return(nil)
	store.On("Create", mock.Anything, "customer-service", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		created = args.Get(2).([]byte)
	})

	reconciler, ws := newTestReconciler(t, store, dir)
	svc := models.ServiceSpec{DisplayName: "Customer Service", BackendURL: "https://x/customers", SchemaPath: schemaPath}

	summary := reconciler.Reconcile(context.Background(), []models.ServiceSpec{svc}, fullPlan)

	// Assert the result
	require.Len(t, summary.Results, 1)
	assert.Equal(t, models.StateCreated, summary.Results[0].State)
	assert.Equal(t, 1, summary.Created())
	assert.Contains(t, string(created), "target-url: https://x/customers\n")
	assert.Contains(t, string(created), "    CustomerServiceRequest:\n      type: object\n      properties:\n")

	artifact, err := os.ReadFile(filepath.Join(ws.OutputDir, "customer-service_1.0.0.yaml"))
	require.NoError(t, err)
	assert.Equal(t, string(created), string(artifact))
	store.AssertExpectations(t)
}

func TestReconcile_UpdatesExistingAPI(t *testing.T) {
	defer filet.CleanUp(t)
	dir := filet.TmpDir(t, "")
	schemaPath := writeSchema(t, dir, "c.json", customerSchemaJSON)

	store := new(apic.MockRemoteAPIStore)
	var updated []byte
	store.On("Exists", mock.Anything, "customer-service").Return(true, nil)
	store.On("Fetch", mock.Anything, "customer-service").Return([]byte(remoteCustomerAPI), nil)
	store.On("Validate", mock.Anything, mock.Anything).Return(nil)
	store.On("Update", mock.Anything, "customer-service", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		updated = args.Get(2).([]byte)
	})

	reconciler, ws := newTestReconciler(t, store, dir)
	svc := models.ServiceSpec{DisplayName: "Customer Service", BackendURL: "https://x/customers", SchemaPath: schemaPath}

	summary := reconciler.Reconcile(context.Background(), []models.ServiceSpec{svc}, fullPlan)

	assert.Equal(t, models.StateUpdated, summary.Results[0].State)
	// Only the schema section and the target-url changed
	assert.Equal(t, patchedCustomerAPI, string(updated))

	staged, err := os.ReadFile(filepath.Join(ws.StagingDir, "customer-service_1.0.0.yaml"))
	require.NoError(t, err)
	assert.Equal(t, remoteCustomerAPI, string(staged))
	assert.FileExists(t, filepath.Join(ws.OutputDir, "customer-service_1.0.0.yaml"))
	store.AssertExpectations(t)
}

func TestReconcile_ExistingKeyInOtherCaseIsReplaced(t *testing.T) {
	defer filet.CleanUp(t)
	dir := filet.TmpDir(t, "")
	schemaPath := writeSchema(t, dir, "c.json", customerSchemaJSON)
	remote := strings.Replace(remoteCustomerAPI, "CustomerServiceRequest:", "customerservicerequest:", 1)

	store := new(apic.MockRemoteAPIStore)
	var updated []byte
	store.On("Exists", mock.Anything, "customer-service").Return(true, nil)
	store.On("Fetch", mock.Anything, "customer-service").Return([]byte(remote), nil)
	store.On("Validate", mock.Anything, mock.Anything).Return(nil)
	store.On("Update", mock.Anything, "customer-service", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		updated = args.Get(2).([]byte)
	})

	reconciler, _ := newTestReconciler(t, store, dir)
	svc := models.ServiceSpec{DisplayName: "Customer Service", BackendURL: "https://x/customers", SchemaPath: schemaPath}

	summary := reconciler.Reconcile(context.Background(), []models.ServiceSpec{svc}, fullPlan)

	// The remote spelling is patched in place, no second section appears
	assert.Equal(t, models.StateUpdated, summary.Results[0].State)
	expected := strings.Replace(patchedCustomerAPI, "CustomerServiceRequest:", "customerservicerequest:", 1)
	assert.Equal(t, expected, string(updated))
	assert.NotContains(t, string(updated), "CustomerServiceRequest")
}

func TestReconcile_ConvergedAPIIsSkipped(t *testing.T) {
	defer filet.CleanUp(t)
	dir := filet.TmpDir(t, "")
	schemaPath := writeSchema(t, dir, "c.json", customerSchemaJSON)

	store := new(apic.MockRemoteAPIStore)
	store.On("Exists", mock.Anything, "customer-service").Return(true, nil)
	store.On("Fetch", mock.Anything, "customer-service").Return([]byte(patchedCustomerAPI), nil)

	reconciler, ws := newTestReconciler(t, store, dir)
	svc := models.ServiceSpec{DisplayName: "Customer Service", BackendURL: "https://x/customers", SchemaPath: schemaPath}

	summary := reconciler.Reconcile(context.Background(), []models.ServiceSpec{svc}, fullPlan)

	assert.Equal(t, models.StateSkipped, summary.Results[0].State)
	assert.Equal(t, "up to date", summary.Results[0].Reason)
	store.AssertNotCalled(t, "Validate", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)

	// The local artifact is restored from the remote copy
	artifact, err := os.ReadFile(filepath.Join(ws.OutputDir, "customer-service_1.0.0.yaml"))
	require.NoError(t, err)
	assert.Equal(t, patchedCustomerAPI, string(artifact))
}

func TestReconcile_WithoutSchemaKeepsExistingSection(t *testing.T) {
	defer filet.CleanUp(t)

	store := new(apic.MockRemoteAPIStore)
	var updated []byte
	store.On("Exists", mock.Anything, "customer-service").Return(true, nil)
	store.On("Fetch", mock.Anything, "customer-service").Return([]byte(remoteCustomerAPI), nil)
	store.On("Validate", mock.Anything, mock.Anything).Return(nil)
	store.On("Update", mock.Anything, "customer-service", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		updated = args.Get(2).([]byte)
	})

	reconciler, _ := newTestReconciler(t, store, "")
	svc := models.ServiceSpec{DisplayName: "Customer Service", BackendURL: "https://x/customers"}

	summary := reconciler.Reconcile(context.Background(), []models.ServiceSpec{svc}, fullPlan)

	assert.Equal(t, models.StateUpdated, summary.Results[0].State)
	assert.Contains(t, string(updated), "        id:\n          type: string\n")
	assert.Contains(t, string(updated), "target-url: https://x/customers\n")
}

func TestReconcile_IncrementalGate(t *testing.T) {
	defer filet.CleanUp(t)
	dir := filet.TmpDir(t, "")
	orderSchema := writeSchema(t, dir, "schemas/order.json", `{"type": "object"}`)
	customerSchema := writeSchema(t, dir, "schemas/customer.json", customerSchemaJSON)

	store := new(apic.MockRemoteAPIStore)
	store.On("Exists", mock.Anything, "order-service").Return(false, nil)
	store.On("Validate", mock.Anything, mock.Anything).Return(nil)
	store.On("Create", mock.Anything, "order-service", mock.Anything).Return(nil)

	reconciler, _ := newTestReconciler(t, store, dir)
	plan := oracle.Plan{
		Mode: oracle.ModeIncremental,
		Changes: oracle.ChangeSet{
			BaselineKnown: true,
			Paths:         mapset.NewSet("schemas/order.json"),
		},
	}
	services := []models.ServiceSpec{
		{DisplayName: "Order Service", BackendURL: "https://x/orders", SchemaPath: orderSchema},
		{DisplayName: "Customer Service", BackendURL: "https://x/customers", SchemaPath: customerSchema},
		{DisplayName: "Ping Service", BackendURL: "https://x/ping"},
	}

	summary := reconciler.Reconcile(context.Background(), services, plan)

	// Exactly one service passes the gate
	assert.Equal(t, models.StateCreated, summary.Results[0].State)
	assert.Equal(t, models.StateSkipped, summary.Results[1].State)
	assert.Equal(t, models.StateSkipped, summary.Results[2].State)
	store.AssertNotCalled(t, "Exists", mock.Anything, "customer-service")
	store.AssertNotCalled(t, "Exists", mock.Anything, "ping-service")
}

func TestReconcile_FailuresAccumulate(t *testing.T) {
	defer filet.CleanUp(t)
	dir := filet.TmpDir(t, "")
	broken := writeSchema(t, dir, "broken.json", `{"type": `)

	store := new(apic.MockRemoteAPIStore)
	store.On("Exists", mock.Anything, "broken-service").Return(false, nil)
	store.On("Exists", mock.Anything, "order-service").Return(false, nil)
	store.On("Exists", mock.Anything, "ping-service").Return(false, nil)
	store.On("Exists", mock.Anything, "lost-service").Return(false, errors.New("connection reset"))
	store.On("Validate", mock.Anything, mock.Anything).Return(nil)
	store.On("Create", mock.Anything, "order-service", mock.Anything).Return(models.NewRemoteOperationError("create rejected", nil))
	store.On("Create", mock.Anything, "ping-service", mock.Anything).Return(nil)

	reconciler, ws := newTestReconciler(t, store, dir)
	services := []models.ServiceSpec{
		{DisplayName: "Broken Service", BackendURL: "https://x/broken", SchemaPath: broken},
		{DisplayName: "Order Service", BackendURL: "https://x/orders"},
		{DisplayName: "Lost Service", BackendURL: "https://x/lost"},
		{DisplayName: "Ping Service", BackendURL: "https://x/ping"},
	}

	summary := reconciler.Reconcile(context.Background(), services, fullPlan)

	assert.Equal(t, 3, summary.Failed())
	assert.Equal(t, 1, summary.Created())
	assert.Equal(t, []string{"Broken Service", "Order Service", "Lost Service"}, summary.FailedServices())
	assert.Equal(t, []string{"ping-service"}, summary.ProcessedIDs())
	assert.True(t, models.HasCode(summary.Results[0].Err, models.CodeValidation))

	// A rejected create leaves no canonical artifact behind
	assert.NoFileExists(t, filepath.Join(ws.OutputDir, "order-service_1.0.0.yaml"))
	assert.FileExists(t, filepath.Join(ws.OutputDir, "ping-service_1.0.0.yaml"))
}

func TestReconcile_ValidationRejected(t *testing.T) {
	defer filet.CleanUp(t)

	store := new(apic.MockRemoteAPIStore)
	store.On("Exists", mock.Anything, "order-service").Return(false, nil)
	store.On("Validate", mock.Anything, mock.Anything).Return(models.NewValidationError("bad document", nil))

	reconciler, _ := newTestReconciler(t, store, "")
	svc := models.ServiceSpec{DisplayName: "Order Service", BackendURL: "https://x/orders"}

	summary := reconciler.Reconcile(context.Background(), []models.ServiceSpec{svc}, fullPlan)

	assert.Equal(t, models.StateFailed, summary.Results[0].State)
	assert.Equal(t, "validation rejected", summary.Results[0].Reason)
	store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}
