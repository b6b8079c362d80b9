package manager

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/plantarium-platform/apisync-go/internal/apic"
	"github.com/plantarium-platform/apisync-go/internal/oracle"
	"github.com/plantarium-platform/apisync-go/internal/patcher"
	"github.com/plantarium-platform/apisync-go/internal/product"
	"github.com/plantarium-platform/apisync-go/internal/schema"
	"github.com/plantarium-platform/apisync-go/internal/storage/repos"
	"github.com/plantarium-platform/apisync-go/pkg/models"
	"github.com/sergi/go-diff/diffmatchpatch"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ServiceReconcilerInterface drives every service toward its desired state.
type ServiceReconcilerInterface interface {
	Reconcile(ctx context.Context, services []models.ServiceSpec, plan oracle.Plan) models.Summary
}

// ServiceReconciler creates or updates one draft API per service.
type ServiceReconciler struct {
	Store      apic.RemoteAPIStore
	Patcher    patcher.DocumentPatcherInterface
	Translator schema.TranslatorInterface
	Artifacts  repos.ArtifactRepositoryInterface
	Backups    repos.BackupRepositoryInterface
	Template   []byte
	APIVersion string
	RepoRoot   string
	logger     *zap.Logger
}

// NewServiceReconciler creates a new ServiceReconciler with the given dependencies.
func NewServiceReconciler(store apic.RemoteAPIStore, docPatcher patcher.DocumentPatcherInterface, translator schema.TranslatorInterface,
	artifacts repos.ArtifactRepositoryInterface, backups repos.BackupRepositoryInterface,
	template []byte, apiVersion, repoRoot string, logger *zap.Logger) *ServiceReconciler {
	return &ServiceReconciler{
		Store:      store,
		Patcher:    docPatcher,
		Translator: translator,
		Artifacts:  artifacts,
		Backups:    backups,
		Template:   template,
		APIVersion: apiVersion,
		RepoRoot:   repoRoot,
		logger:     logger,
	}
}

// Reconcile processes services in input order. A failing service is recorded
// and the loop continues with the next one.
func (r *ServiceReconciler) Reconcile(ctx context.Context, services []models.ServiceSpec, plan oracle.Plan) models.Summary {
	var summary models.Summary
	for _, svc := range services {
		result := r.reconcileService(ctx, svc, plan)
		fields := []zap.Field{
			zap.String("service", svc.DisplayName),
			zap.String("tag", svc.Tag),
			zap.String("state", string(result.State)),
		}
		if result.Reason != "" {
			fields = append(fields, zap.String("reason", result.Reason))
		}
		if result.Err != nil {
			r.logger.Error("Service reconciliation failed", append(fields, zap.Error(result.Err))...)
		} else {
			r.logger.Info("Service reconciled", fields...)
		}
		summary.Record(result)
	}
	return summary
}

func (r *ServiceReconciler) reconcileService(ctx context.Context, svc models.ServiceSpec, plan oracle.Plan) models.ServiceResult {
	if plan.Mode == oracle.ModeIncremental {
		if !svc.HasSchema() {
			return skipped(svc, "no schema")
		}
		if !plan.Changes.Contains(oracle.RelativeTo(r.RepoRoot, svc.SchemaPath)) {
			return skipped(svc, "schema unchanged")
		}
	}

	id := svc.CanonicalID()
	exists, err := r.Store.Exists(ctx, id)
	if err != nil {
		return failed(svc, "existence check failed", err)
	}
	if !exists {
		r.transition(svc, models.StateCreatePending)
		return r.create(ctx, svc)
	}
	r.transition(svc, models.StateUpdatePending)
	return r.update(ctx, svc)
}

func (r *ServiceReconciler) transition(svc models.ServiceSpec, state models.ServiceState) {
	r.logger.Debug("State transition", zap.String("service", svc.DisplayName), zap.String("state", string(state)))
}

func (r *ServiceReconciler) artifactName(svc models.ServiceSpec) string {
	return product.ArtifactName(svc.CanonicalID(), r.APIVersion)
}

func (r *ServiceReconciler) create(ctx context.Context, svc models.ServiceSpec) models.ServiceResult {
	schemaDoc, err := r.Translator.Translate(svc.SchemaPath)
	if err != nil {
		return failed(svc, "schema translation failed", err)
	}

	operation := svc.OperationName()
	doc, err := patcher.Render(r.Template, patcher.TemplateValues{
		ServiceName:   svc.DisplayName,
		APIName:       svc.CanonicalID(),
		OperationName: operation,
		TargetURL:     svc.BackendURL,
		Version:       r.APIVersion,
	}, schemaDoc.Lines)
	if err != nil {
		return failed(svc, "template rendering failed", err)
	}
	if err := r.Patcher.Verify(doc, patcher.SectionKey(operation)); err != nil {
		return failed(svc, "rendered document is invalid", err)
	}

	return r.submit(ctx, svc, doc, models.StateCreated, r.Store.Create)
}

func (r *ServiceReconciler) update(ctx context.Context, svc models.ServiceSpec) models.ServiceResult {
	id := svc.CanonicalID()
	remote, err := r.Store.Fetch(ctx, id)
	if err != nil {
		return failed(svc, "fetch failed", err)
	}
	if err := r.Backups.Stage(r.artifactName(svc), remote); err != nil {
		return failed(svc, "backup staging failed", err)
	}

	schemaDoc, err := r.Translator.Translate(svc.SchemaPath)
	if err != nil {
		return failed(svc, "schema translation failed", err)
	}

	// A section already present remotely wins over the derived key, spelled
	// exactly as the remote document has it
	key := patcher.SectionKey(svc.OperationName())
	if detected, ok := r.Patcher.DetectSectionKey(remote, svc.OperationName()); ok {
		key = detected
	}

	doc := remote
	_, present := r.Patcher.FindSection(remote, key)
	switch {
	case present && svc.HasSchema():
		doc, err = r.Patcher.ReplaceSection(doc, key, schemaDoc.Lines)
	case !present:
		doc, err = r.Patcher.InsertSection(doc, key, schemaDoc.Lines)
	}
	if err != nil {
		return failed(svc, "schema patch failed", err)
	}

	doc, err = r.Patcher.UpdateTargetURL(doc, svc.BackendURL)
	if err != nil {
		return failed(svc, "target-url update failed", err)
	}

	if bytes.Equal(doc, remote) {
		if !r.Artifacts.Exists(r.artifactName(svc)) {
			if err := r.Artifacts.Restore(r.artifactName(svc), remote); err != nil {
				return failed(svc, "artifact restore failed", err)
			}
		}
		return skipped(svc, "up to date")
	}

	r.logDiff(svc, remote, doc)
	return r.submit(ctx, svc, doc, models.StateUpdated, r.Store.Update)
}

// submit writes doc to a temp artifact, validates and stores it remotely, and
// adopts the temp artifact as the canonical output.
func (r *ServiceReconciler) submit(ctx context.Context, svc models.ServiceSpec, doc []byte, final models.ServiceState,
	write func(ctx context.Context, id string, doc []byte) error) models.ServiceResult {
	id := svc.CanonicalID()
	tempPath, err := r.Artifacts.WriteTemp(id, doc)
	if err != nil {
		return failed(svc, "temp artifact write failed", err)
	}
	if err := r.Store.Validate(ctx, doc); err != nil {
		return failed(svc, "validation rejected", err)
	}
	if err := write(ctx, id, doc); err != nil {
		return failed(svc, fmt.Sprintf("%s failed", stateVerb(final)), err)
	}
	if err := r.Artifacts.Adopt(tempPath, r.artifactName(svc)); err != nil {
		return failed(svc, "artifact adoption failed", err)
	}
	return models.ServiceResult{Service: svc, State: final}
}

func (r *ServiceReconciler) logDiff(svc models.ServiceSpec, before, after []byte) {
	if !r.logger.Core().Enabled(zapcore.DebugLevel) {
		return
	}
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(string(before), string(after))
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)
	patches := dmp.PatchMake(string(before), diffs)
	r.logger.Debug("Remote document changes",
		zap.String("service", svc.DisplayName),
		zap.String("diff", dmp.PatchToText(patches)))
}

func stateVerb(state models.ServiceState) string {
	if state == models.StateCreated {
		return "create"
	}
	return "update"
}

func skipped(svc models.ServiceSpec, reason string) models.ServiceResult {
	return models.ServiceResult{Service: svc, State: models.StateSkipped, Reason: reason}
}

func failed(svc models.ServiceSpec, reason string, err error) models.ServiceResult {
	if err == nil {
		err = errors.New(reason)
	}
	return models.ServiceResult{Service: svc, State: models.StateFailed, Reason: reason, Err: err}
}
