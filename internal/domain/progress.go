package domain

import (
	"errors"
	"fmt"
	"math"
)

var happyPath = []WorkflowStage{
	StageDraft,
	StageSubmitted,
	StageAcknowledged,
	StageAssigned,
	StageScheduled,
	StageInProgress,
	StageCompleted,
	StageBilled,
	StagePaid,
	StageClosed,
}

type Projection struct {
	Stage           StageDefinition `json:"stage" yaml:"stage"`
	Index           int             `json:"index" yaml:"index"`
	ProgressPercent int             `json:"progress_percent" yaml:"progress_percent"`
	NextStages      []WorkflowStage `json:"next_stages" yaml:"next_stages"`
	OnHappyPath     bool            `json:"on_happy_path" yaml:"on_happy_path"`
}

// HappyPath returns the expected linear progression used for progress bars.
func HappyPath() []WorkflowStage {
	return append([]WorkflowStage{}, happyPath...)
}

// NextStages returns nil-safe, caller-owned successors; empty for terminal
// and unknown stages.
func NextStages(key string) []WorkflowStage {
	return Lookup(key).NextStages
}

func StageIndex(key string) int {
	stage := NormalizeStage(key)
	for i, s := range happyPath {
		if s == stage {
			return i
		}
	}
	return -1
}

// ProgressPercent is 0 for stages off the happy path, including cancelled
// and on_hold.
func ProgressPercent(key string) int {
	idx := StageIndex(key)
	if idx < 0 {
		return 0
	}
	return int(math.Round(100 * float64(idx) / float64(len(happyPath)-1)))
}

func CanTransition(from, to string) bool {
	target := NormalizeStage(to)
	for _, next := range NextStages(from) {
		if next == target {
			return true
		}
	}
	return false
}

func Project(key string) Projection {
	def := Lookup(key)
	idx := StageIndex(key)
	return Projection{
		Stage:           def,
		Index:           idx,
		ProgressPercent: ProgressPercent(key),
		NextStages:      def.NextStages,
		OnHappyPath:     idx >= 0,
	}
}

// ValidateGraph checks that every edge points at a registered stage and that
// edges between happy-path stages only move forward.
func ValidateGraph() error {
	var errs []error
	if len(stageOrder) != len(stageRegistry) {
		errs = append(errs, fmt.Errorf("stage order lists %d stages, registry has %d", len(stageOrder), len(stageRegistry)))
	}
	for _, stage := range happyPath {
		if _, ok := stageRegistry[stage]; !ok {
			errs = append(errs, fmt.Errorf("happy path stage %q is not registered", stage))
		}
	}
	for _, stage := range stageOrder {
		def, ok := stageRegistry[stage]
		if !ok {
			errs = append(errs, fmt.Errorf("stage %q has no definition", stage))
			continue
		}
		if def.LegacyStatus == "" {
			errs = append(errs, fmt.Errorf("stage %q has no legacy status", stage))
		}
		from := StageIndex(string(stage))
		for _, next := range def.NextStages {
			if _, ok := stageRegistry[next]; !ok {
				errs = append(errs, fmt.Errorf("stage %q lists unknown next stage %q", stage, next))
				continue
			}
			to := StageIndex(string(next))
			if from >= 0 && to >= 0 && to <= from {
				errs = append(errs, fmt.Errorf("happy path edge %q -> %q moves backwards", stage, next))
			}
		}
	}
	return errors.Join(errs...)
}
