// Package oracle decides whether a run reconciles every service or only the
// ones whose inputs changed since the last successful run.
package oracle

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set"
	"github.com/plantarium-platform/apisync-go/pkg/models"
	"go.uber.org/zap"
)

type Mode string

const (
	ModeFull        Mode = "full"
	ModeIncremental Mode = "incremental"
)

// ChangeSet is the set of paths changed since the baseline. When
// BaselineKnown is false the set carries no information and everything must
// be reconciled.
type ChangeSet struct {
	BaselineKnown bool
	Paths         mapset.Set
	Degraded      bool
}

// Contains reports whether path is in the change set.
func (c ChangeSet) Contains(path string) bool {
	if c.Paths == nil {
		return false
	}
	return c.Paths.Contains(NormalizePath(path))
}

// Plan is the reconciliation mode chosen for a run.
type Plan struct {
	Mode     Mode
	Changes  ChangeSet
	Revision string
	Reason   string
}

// NormalizePath turns a path into the slash separated form used by the history.
func NormalizePath(p string) string {
	p = filepath.ToSlash(filepath.Clean(p))
	return strings.TrimPrefix(p, "./")
}

// RelativeTo expresses p relative to root when p is absolute.
func RelativeTo(root, p string) string {
	if p == "" {
		return ""
	}
	if !filepath.IsAbs(p) {
		return NormalizePath(p)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return NormalizePath(p)
	}
	rel, err := filepath.Rel(absRoot, p)
	if err != nil {
		return NormalizePath(p)
	}
	return NormalizePath(rel)
}

// ChangeOracleInterface plans a run from the stored marker.
type ChangeOracleInterface interface {
	ChangedArtifacts(ctx context.Context, marker string) ChangeSet
	Plan(ctx context.Context, marker string, force bool) Plan
}

// ChangeOracle implements ChangeOracleInterface over a RevisionHistory.
type ChangeOracle struct {
	history  RevisionHistory
	critical []string
	timeout  time.Duration
	logger   *zap.Logger
}

// NewChangeOracle creates an oracle. A change to any critical path forces a
// full run.
func NewChangeOracle(history RevisionHistory, critical []string, timeout time.Duration, logger *zap.Logger) *ChangeOracle {
	normalized := make([]string, 0, len(critical))
	for _, c := range critical {
		if strings.TrimSpace(c) != "" {
			normalized = append(normalized, NormalizePath(c))
		}
	}
	return &ChangeOracle{history: history, critical: normalized, timeout: timeout, logger: logger}
}

// ChangedArtifacts returns the paths changed since marker.
func (o *ChangeOracle) ChangedArtifacts(ctx context.Context, marker string) ChangeSet {
	changes, _ := o.changes(ctx, marker)
	return changes
}

// Plan chooses full or incremental reconciliation.
func (o *ChangeOracle) Plan(ctx context.Context, marker string, force bool) Plan {
	changes, revision := o.changes(ctx, marker)
	plan := Plan{Mode: ModeIncremental, Changes: changes, Revision: revision, Reason: "incremental"}

	switch {
	case force:
		plan.Mode, plan.Reason = ModeFull, "forced"
	case marker == "":
		plan.Mode, plan.Reason = ModeFull, "no marker"
	case !changes.BaselineKnown:
		plan.Mode, plan.Reason = ModeFull, "invalid marker"
	default:
		for _, c := range o.critical {
			if changes.Contains(c) {
				plan.Mode, plan.Reason = ModeFull, "critical path changed: "+c
				break
			}
		}
	}

	o.logger.Info("Reconciliation planned",
		zap.String("mode", string(plan.Mode)),
		zap.String("reason", plan.Reason),
		zap.String("revision", plan.Revision),
		zap.Int("changed", changes.Paths.Cardinality()))
	return plan
}

func (o *ChangeOracle) changes(ctx context.Context, marker string) (ChangeSet, string) {
	empty := ChangeSet{BaselineKnown: true, Paths: mapset.NewSet()}

	revision, err := o.currentRevision(ctx)
	if err != nil {
		o.degraded(err)
		revision = ""
	}
	if !ValidMarker(marker) {
		return ChangeSet{BaselineKnown: false, Paths: mapset.NewSet()}, revision
	}
	if err != nil {
		empty.Degraded = true
		return empty, revision
	}
	if revision == marker {
		return empty, revision
	}

	diffCtx, cancel := o.withTimeout(ctx)
	defer cancel()
	paths, err := o.history.Diff(diffCtx, marker, revision)
	if err != nil {
		o.degraded(err)
		empty.Degraded = true
		return empty, revision
	}
	for _, p := range paths {
		empty.Paths.Add(NormalizePath(p))
	}
	return empty, revision
}

func (o *ChangeOracle) currentRevision(ctx context.Context) (string, error) {
	revCtx, cancel := o.withTimeout(ctx)
	defer cancel()
	return o.history.CurrentRevision(revCtx)
}

func (o *ChangeOracle) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.timeout)
}

func (o *ChangeOracle) degraded(err error) {
	o.logger.Warn("Revision history unavailable, treating change set as empty",
		zap.Error(models.NewOracleDegradationError("revision history failed", err)))
}
