package manager

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dchest/uniuri"
	"github.com/plantarium-platform/apisync-go/internal/apic"
	"github.com/plantarium-platform/apisync-go/internal/config"
	"github.com/plantarium-platform/apisync-go/internal/metrics"
	"github.com/plantarium-platform/apisync-go/internal/oracle"
	"github.com/plantarium-platform/apisync-go/internal/patcher"
	"github.com/plantarium-platform/apisync-go/internal/product"
	"github.com/plantarium-platform/apisync-go/internal/schema"
	"github.com/plantarium-platform/apisync-go/internal/storage"
	"github.com/plantarium-platform/apisync-go/internal/storage/repos"
	"github.com/plantarium-platform/apisync-go/pkg/models"
	"go.uber.org/zap"
)

const runIDLength = 12

// RunManagerInterface runs one synchronization.
type RunManagerInterface interface {
	Run(ctx context.Context) (*models.RunReport, error)
}

// RunOptions are the per-invocation settings of a run.
type RunOptions struct {
	ServicesPath string
	Force        bool
}

// RunManager drives a run: load and validate the desired state, plan,
// reconcile services, publish the product and commit or discard the backup.
type RunManager struct {
	Loader     ServiceLoaderInterface
	Reconciler ServiceReconcilerInterface
	Assembler  ProductAssemblerInterface
	Oracle     oracle.ChangeOracleInterface
	Store      apic.RemoteAPIStore
	Workspace  *storage.Workspace
	Backups    repos.BackupRepositoryInterface
	Marker     *oracle.MarkerStore
	Metrics    *metrics.Pusher // Optional
	Options    RunOptions
	logger     *zap.Logger
}

// NewRunManager creates a new RunManager with the required dependencies.
func NewRunManager(loader ServiceLoaderInterface, reconciler ServiceReconcilerInterface, assembler ProductAssemblerInterface,
	changeOracle oracle.ChangeOracleInterface, store apic.RemoteAPIStore, workspace *storage.Workspace,
	backups repos.BackupRepositoryInterface, marker *oracle.MarkerStore, options RunOptions, logger *zap.Logger) *RunManager {
	return &RunManager{
		Loader:     loader,
		Reconciler: reconciler,
		Assembler:  assembler,
		Oracle:     changeOracle,
		Store:      store,
		Workspace:  workspace,
		Backups:    backups,
		Marker:     marker,
		Options:    options,
		logger:     logger,
	}
}

// NewRunManagerWithDI builds every dependency of a run from cfg.
func NewRunManagerWithDI(cfg *config.Config, logger *zap.Logger) (*RunManager, error) {
	policy, err := patcher.ParseMatchPolicy(cfg.Reconcile.MatchPolicy)
	if err != nil {
		return nil, models.NewValidationError("invalid reconcile.match_policy", err)
	}

	template := patcher.DefaultTemplate()
	if cfg.Paths.Template != "" {
		template, err = os.ReadFile(cfg.Paths.Template)
		if err != nil {
			return nil, models.NewValidationError(fmt.Sprintf("template %s is not readable", cfg.Paths.Template), err)
		}
	}

	workspace := storage.NewWorkspace(cfg.Paths.OutputDir, cfg.Paths.BackupDir)
	artifacts := repos.NewArtifactRepository(workspace)
	backups := repos.NewBackupRepository(workspace)

	platformConfig := apic.PlatformConfig{
		Server:         cfg.Platform.Server,
		Org:            cfg.Platform.Org,
		Catalog:        cfg.Platform.Catalog,
		Realm:          cfg.Platform.Realm,
		Username:       cfg.Platform.Username,
		Password:       cfg.Platform.Password,
		ClientID:       cfg.Platform.ClientID,
		ClientSecret:   cfg.Platform.ClientSecret,
		APIVersion:     cfg.API.Version,
		ProductVersion: cfg.Product.Version,
		Timeout:        cfg.Platform.Timeout,
	}
	store := apic.NewAPIStore(platformConfig, apic.NewPlatformClient(platformConfig, logger), logger)

	var history oracle.RevisionHistory
	gitHistory, err := oracle.NewGitHistory(cfg.Paths.RepoRoot)
	if err != nil {
		logger.Warn("No revision history available, every run reconciles all services", zap.Error(err))
		history = oracle.UnavailableHistory{Err: err}
	} else {
		history = gitHistory
	}
	var critical []string
	for _, p := range cfg.CriticalPaths() {
		critical = append(critical, oracle.RelativeTo(cfg.Paths.RepoRoot, p))
	}
	changeOracle := oracle.NewChangeOracle(history, critical, cfg.Platform.Timeout, logger)

	reconciler := NewServiceReconciler(store,
		patcher.NewPatcher(patcher.ParseContainer(cfg.API.SchemaContainer), policy),
		schema.NewTranslator(), artifacts, backups, template,
		cfg.API.Version, cfg.Paths.RepoRoot, logger)

	assembler := NewProductAssembler(store, artifacts, backups, product.Settings{
		Name:                cfg.Product.Name,
		Title:               cfg.Product.Title,
		Version:             cfg.Product.Version,
		APIVersion:          cfg.API.Version,
		ViewVisibility:      cfg.Product.View,
		SubscribeVisibility: cfg.Product.Subscribe,
		PlanName:            cfg.Product.PlanName,
		PlanTitle:           cfg.Product.PlanTitle,
		PlanRateLimit:       cfg.Product.PlanRateLimit,
		PlanApproval:        cfg.Product.PlanApproval,
	}, logger)

	rm := NewRunManager(NewServiceLoader(logger), reconciler, assembler, changeOracle, store,
		workspace, backups, oracle.NewMarkerStore(cfg.Paths.MarkerFile),
		RunOptions{ServicesPath: cfg.Paths.Services, Force: cfg.Reconcile.Force || !cfg.Reconcile.Incremental},
		logger)
	rm.Metrics = metrics.NewPusher(cfg.Metrics.Pushgateway, cfg.Metrics.Job, logger)
	return rm, nil
}

// Run executes one synchronization. The returned error is set for whole-run
// failures; per-service failures are reported through report.Err().
func (m *RunManager) Run(ctx context.Context) (*models.RunReport, error) {
	start := time.Now()
	report, err := m.run(ctx)

	if m.Metrics != nil {
		m.Metrics.Observe(report, err, time.Since(start))
		if pushErr := m.Metrics.Push(ctx); pushErr != nil {
			m.logger.Warn("Failed to push metrics", zap.Error(pushErr))
		}
	}
	return report, err
}

func (m *RunManager) run(ctx context.Context) (*models.RunReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("run cancelled before start: %w", err)
	}

	services, err := m.Loader.LoadServices(m.Options.ServicesPath)
	if err != nil {
		return nil, err
	}
	if err := ValidateUnique(services); err != nil {
		return nil, err
	}

	runID := uniuri.NewLen(runIDLength)
	if err := m.Workspace.Begin(runID); err != nil {
		return nil, fmt.Errorf("failed to prepare workspace: %w", err)
	}
	defer func() {
		if err := m.Workspace.End(); err != nil {
			m.logger.Warn("Failed to clean up temp directory", zap.Error(err))
		}
	}()

	marker, err := m.Marker.Read()
	if err != nil {
		m.logger.Warn("Marker unreadable, reconciling every service", zap.String("path", m.Marker.Path()), zap.Error(err))
		marker = ""
	}
	plan := m.Oracle.Plan(ctx, marker, m.Options.Force)

	report := &models.RunReport{
		RunID:    runID,
		Mode:     string(plan.Mode),
		Reason:   plan.Reason,
		Revision: plan.Revision,
	}
	m.logger.Info("Run started",
		zap.String("run", runID),
		zap.String("mode", report.Mode),
		zap.Int("services", len(services)))

	if err := m.Store.Login(ctx); err != nil {
		m.discard()
		return report, fmt.Errorf("login failed: %w", err)
	}

	report.Summary = m.Reconciler.Reconcile(ctx, services, plan)

	if _, err := m.Assembler.Assemble(ctx, report.Summary.ProcessedIDs()); err != nil {
		m.discard()
		return report, fmt.Errorf("product stage failed: %w", err)
	}

	if report.Summary.Failed() > 0 {
		m.discard()
		m.logger.Warn("Run finished with failures, marker and backup left unchanged",
			zap.String("summary", report.Summary.String()),
			zap.Strings("failed", report.Summary.FailedServices()))
		return report, nil
	}

	if err := m.Backups.Commit(plan.Revision); err != nil {
		return report, fmt.Errorf("failed to commit backup: %w", err)
	}
	report.BackupCommitted = true

	if oracle.ValidMarker(plan.Revision) {
		if err := m.Marker.Write(plan.Revision); err != nil {
			return report, fmt.Errorf("failed to write marker: %w", err)
		}
		report.MarkerWritten = true
	} else {
		m.logger.Warn("No revision known, marker not written")
	}

	m.logger.Info("Run finished", zap.String("summary", report.Summary.String()))
	return report, nil
}

func (m *RunManager) discard() {
	if err := m.Backups.Discard(); err != nil {
		m.logger.Warn("Failed to discard backup staging", zap.Error(err))
	}
}
