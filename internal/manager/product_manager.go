package manager

import (
	"context"
	"fmt"

	"github.com/plantarium-platform/apisync-go/internal/apic"
	"github.com/plantarium-platform/apisync-go/internal/product"
	"github.com/plantarium-platform/apisync-go/internal/storage/repos"
	"github.com/plantarium-platform/apisync-go/pkg/models"
	"go.uber.org/zap"
)

// ProductAssemblerInterface builds and publishes the product for a run.
type ProductAssemblerInterface interface {
	Assemble(ctx context.Context, processedIDs []string) ([]string, error)
}

// ProductAssembler merges the API references of a run into the remote
// product and publishes it. Every error it returns is fatal for the run.
type ProductAssembler struct {
	Store     apic.RemoteAPIStore
	Artifacts repos.ArtifactRepositoryInterface
	Backups   repos.BackupRepositoryInterface
	Settings  product.Settings
	logger    *zap.Logger
}

// NewProductAssembler creates a new ProductAssembler.
func NewProductAssembler(store apic.RemoteAPIStore, artifacts repos.ArtifactRepositoryInterface,
	backups repos.BackupRepositoryInterface, settings product.Settings, logger *zap.Logger) *ProductAssembler {
	return &ProductAssembler{
		Store:     store,
		Artifacts: artifacts,
		Backups:   backups,
		Settings:  settings,
		logger:    logger,
	}
}

// Assemble returns the API ids the published product references.
func (a *ProductAssembler) Assemble(ctx context.Context, processedIDs []string) ([]string, error) {
	fileName := product.ArtifactName(a.Settings.Name, a.Settings.Version)

	existingDoc, found, err := a.Store.FetchProduct(ctx, a.Settings.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch product %s: %w", a.Settings.Name, err)
	}

	var existing []string
	if found {
		if err := a.Backups.Stage(fileName, existingDoc); err != nil {
			return nil, fmt.Errorf("failed to back up product %s: %w", a.Settings.Name, err)
		}
		existing, err = product.ParseAPIRefs(existingDoc)
		if err != nil {
			return nil, fmt.Errorf("failed to read product %s: %w", a.Settings.Name, err)
		}
	}

	ids := product.Merge(existing, processedIDs)
	if len(ids) == 0 {
		return nil, models.NewValidationError(fmt.Sprintf("product %s would reference no APIs", a.Settings.Name), nil)
	}
	for _, id := range ids {
		if err := a.ensureArtifact(id); err != nil {
			return nil, err
		}
	}

	doc, err := product.Render(a.Settings, ids)
	if err != nil {
		return nil, err
	}
	tempPath, err := a.Artifacts.WriteTemp(a.Settings.Name, doc)
	if err != nil {
		return nil, fmt.Errorf("failed to write product %s: %w", a.Settings.Name, err)
	}
	if err := a.Store.SaveProduct(ctx, a.Settings.Name, doc); err != nil {
		return nil, fmt.Errorf("failed to save product %s: %w", a.Settings.Name, err)
	}
	if err := a.Store.Publish(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to publish product %s: %w", a.Settings.Name, err)
	}
	if err := a.Artifacts.Adopt(tempPath, fileName); err != nil {
		return nil, fmt.Errorf("product %s published, but failed to keep local copy: %w", a.Settings.Name, err)
	}

	a.logger.Info("Product published",
		zap.String("product", a.Settings.Name),
		zap.Int("apis", len(ids)),
		zap.Int("previous", len(existing)))
	return ids, nil
}

// ensureArtifact makes sure the local definition of id exists, restoring it
// from the backup store when needed.
func (a *ProductAssembler) ensureArtifact(id string) error {
	name := product.ArtifactName(id, a.Settings.APIVersion)
	if a.Artifacts.Exists(name) {
		return nil
	}

	doc, ok, err := a.Backups.Recover(name)
	if err != nil {
		return fmt.Errorf("failed to recover %s from backup: %w", name, err)
	}
	if !ok {
		return models.NewNotFoundError(fmt.Sprintf("artifact %s is missing locally and in the backup", name), nil)
	}
	if err := a.Artifacts.Restore(name, doc); err != nil {
		return fmt.Errorf("failed to restore %s: %w", name, err)
	}
	a.logger.Warn("Artifact restored from backup", zap.String("artifact", name))
	return nil
}
