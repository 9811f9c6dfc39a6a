// Package sampling selects dataset members from an already filtered
// candidate list.
package sampling

import (
	"math/rand"
	"time"

	"github.com/mwantia/manifest/pkg/db/models"
	"github.com/mwantia/manifest/pkg/errdefs"
)

type Mode string

const (
	ModeAll          Mode = "all"
	ModeRandom       Mode = "random"
	ModeClassTargets Mode = "class_targets"
)

// Config selects a sampling policy. Count and Seed apply to ModeRandom,
// ClassTargets to ModeClassTargets.
type Config struct {
	Mode         Mode           `json:"mode" yaml:"mode"`
	Count        *int           `json:"count,omitempty" yaml:"count,omitempty"`
	ClassTargets map[string]int `json:"class_targets,omitempty" yaml:"class_targets,omitempty"`
	Seed         *int64         `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// Validate reports malformed configurations before any selection happens.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeAll, ModeClassTargets:
		return nil
	case ModeRandom:
		if c.Count == nil {
			return errdefs.Validation("random sampling requires a count")
		}
		if *c.Count < 0 {
			return errdefs.Validation("random sampling count must not be negative, got %d", *c.Count)
		}
		return nil
	case "":
		return errdefs.Validation("sampling mode is required")
	default:
		return errdefs.Validation("unknown sampling mode '%s'", c.Mode)
	}
}

// Candidate exposes the per-class object counts of one sample. A candidate
// without annotation returns nil.
type Candidate interface {
	ClassCounts() models.ClassCounts
}

type AchievementStatus string

const (
	Achieved AchievementStatus = "achieved"
	Partial  AchievementStatus = "partial"
)

// Achievement compares a class target with what the selection delivers.
type Achievement struct {
	Target int               `json:"target"`
	Actual int               `json:"actual"`
	Status AchievementStatus `json:"status"`
}

type Result[T any] struct {
	Selected      []T                    `json:"selected"`
	TotalSelected int                    `json:"total_selected"`
	Mode          Mode                   `json:"mode"`
	Achievement   map[string]Achievement `json:"achievement,omitempty"`
}

// Apply runs the configured policy over candidates.
func Apply[T Candidate](candidates []T, cfg Config) (*Result[T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	result := &Result[T]{Mode: cfg.Mode}
	switch cfg.Mode {
	case ModeAll:
		result.Selected = All(candidates)
	case ModeRandom:
		selected, err := Random(candidates, *cfg.Count, cfg.Seed)
		if err != nil {
			return nil, err
		}
		result.Selected = selected
	case ModeClassTargets:
		result.Selected, result.Achievement = ClassTargets(candidates, cfg.ClassTargets)
	}

	result.TotalSelected = len(result.Selected)
	return result, nil
}

// All returns a copy of candidates in their original order.
func All[T any](candidates []T) []T {
	out := make([]T, len(candidates))
	copy(out, candidates)
	return out
}

// Random draws min(count, len(candidates)) distinct candidates uniformly.
// The same seed over the same candidate order gives the same selection;
// a nil seed draws from the clock.
func Random[T any](candidates []T, count int, seed *int64) ([]T, error) {
	if count < 0 {
		return nil, errdefs.Validation("random sampling count must not be negative, got %d", count)
	}

	var rng *rand.Rand
	if seed != nil {
		rng = rand.New(rand.NewSource(*seed))
	} else {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	pool := All(candidates)
	k := min(count, len(pool))

	// Partial Fisher-Yates: the first k slots end up as the sample.
	for i := 0; i < k; i++ {
		j := i + rng.Intn(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:k], nil
}

// ClassTargets greedily picks candidates until every class reaches its
// target object count or no remaining candidate contributes. Negative
// targets count as zero. Ties go to the earlier candidate.
func ClassTargets[T Candidate](candidates []T, targets map[string]int) ([]T, map[string]Achievement) {
	remaining := make(map[string]int, len(targets))
	for class, target := range targets {
		remaining[class] = max(target, 0)
	}

	counts := make([]models.ClassCounts, len(candidates))
	for i, c := range candidates {
		counts[i] = c.ClassCounts()
	}

	used := make([]bool, len(candidates))
	var selected []T

	for unsatisfied(remaining) {
		best, bestScore := -1, 0.0
		for i := range candidates {
			if used[i] {
				continue
			}
			if s := score(counts[i], remaining, targets); s > bestScore {
				best, bestScore = i, s
			}
		}
		if best < 0 {
			break
		}

		used[best] = true
		selected = append(selected, candidates[best])
		for class, left := range remaining {
			remaining[class] = max(left-counts[best][class], 0)
		}
	}

	return selected, achievements(selected, targets)
}

func unsatisfied(remaining map[string]int) bool {
	for _, left := range remaining {
		if left > 0 {
			return true
		}
	}
	return false
}

// score sums each still deficient class's contribution relative to its target.
func score(counts models.ClassCounts, remaining, targets map[string]int) float64 {
	var total float64
	for class, left := range remaining {
		if left <= 0 {
			continue
		}
		if n := counts[class]; n > 0 {
			total += float64(min(n, left)) / float64(targets[class])
		}
	}
	return total
}

func achievements[T Candidate](selected []T, targets map[string]int) map[string]Achievement {
	out := make(map[string]Achievement, len(targets))
	for class, target := range targets {
		target = max(target, 0)

		actual := 0
		for _, s := range selected {
			actual += s.ClassCounts()[class]
		}

		status := Partial
		if actual >= target {
			status = Achieved
		}
		out[class] = Achievement{Target: target, Actual: actual, Status: status}
	}
	return out
}
