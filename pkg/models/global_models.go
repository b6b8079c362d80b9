package models

import (
	"fmt"
	"strings"
)

// ServiceSpec is one desired service read from the desired-state input.
// Field tags follow the services.json layout used by existing pipelines.
type ServiceSpec struct {
	DisplayName string `json:"API Name" yaml:"API Name"`                                   // Human readable service name
	BackendURL  string `json:"Url" yaml:"Url"`                                             // Target endpoint
	SchemaPath  string `json:"Schema Location,omitempty" yaml:"Schema Location,omitempty"` // Optional JSON Schema path
	Tag         string `json:"tag,omitempty" yaml:"tag,omitempty"`                         // rest or soap
}

// CanonicalID returns the remote identity key: lowercase name, spaces replaced by hyphens.
func (s ServiceSpec) CanonicalID() string {
	return strings.ReplaceAll(strings.ToLower(s.DisplayName), " ", "-")
}

// OperationName returns the display name with spaces stripped.
func (s ServiceSpec) OperationName() string {
	return strings.ReplaceAll(s.DisplayName, " ", "")
}

// HasSchema reports whether the service declares a request schema.
func (s ServiceSpec) HasSchema() bool {
	return strings.TrimSpace(s.SchemaPath) != ""
}

// ServiceState is the reconciliation state of a single service.
type ServiceState string

const (
	StateSkipped       ServiceState = "SKIPPED"
	StateCreatePending ServiceState = "CREATE_PENDING"
	StateCreated       ServiceState = "CREATED"
	StateUpdatePending ServiceState = "UPDATE_PENDING"
	StateUpdated       ServiceState = "UPDATED"
	StateFailed        ServiceState = "FAILED"
)

// Terminal reports whether no further transition is possible from the state.
func (s ServiceState) Terminal() bool {
	switch s {
	case StateSkipped, StateCreated, StateUpdated, StateFailed:
		return true
	}
	return false
}

// ServiceResult is the outcome of reconciling one service.
type ServiceResult struct {
	Service ServiceSpec
	State   ServiceState
	Reason  string
	Err     error
}

// Summary accumulates service results for one run, in input order.
type Summary struct {
	Results []ServiceResult
}

// Record appends a result to the summary.
func (s *Summary) Record(result ServiceResult) {
	s.Results = append(s.Results, result)
}

func (s Summary) count(state ServiceState) int {
	n := 0
	for _, r := range s.Results {
		if r.State == state {
			n++
		}
	}
	return n
}

func (s Summary) Created() int { return s.count(StateCreated) }
func (s Summary) Updated() int { return s.count(StateUpdated) }
func (s Summary) Skipped() int { return s.count(StateSkipped) }
func (s Summary) Failed() int  { return s.count(StateFailed) }

// FailedServices returns the display names of failed services.
func (s Summary) FailedServices() []string {
	var names []string
	for _, r := range s.Results {
		if r.State == StateFailed {
			names = append(names, r.Service.DisplayName)
		}
	}
	return names
}

// ProcessedIDs returns the canonical ids of services that did not fail, in input order.
// These are the ids the product must reference after this run.
func (s Summary) ProcessedIDs() []string {
	var ids []string
	for _, r := range s.Results {
		if r.State != StateFailed {
			ids = append(ids, r.Service.CanonicalID())
		}
	}
	return ids
}

// String renders the end-of-run summary line.
func (s Summary) String() string {
	return fmt.Sprintf("created=%d updated=%d skipped=%d failed=%d",
		s.Created(), s.Updated(), s.Skipped(), s.Failed())
}

// RunReport describes a finished run.
type RunReport struct {
	RunID           string
	Mode            string
	Reason          string
	Revision        string
	Summary         Summary
	BackupCommitted bool
	MarkerWritten   bool
}

// Err returns a non-nil error when any service failed.
func (r *RunReport) Err() error {
	if r == nil || r.Summary.Failed() == 0 {
		return nil
	}
	return fmt.Errorf("%d service(s) failed: %s", r.Summary.Failed(), strings.Join(r.Summary.FailedServices(), ", "))
}
