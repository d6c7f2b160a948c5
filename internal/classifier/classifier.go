package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"slices"
)

// SchemaV1 identifies the only artifact layout this package understands
const SchemaV1 = "deepwater.classifier/v1"

// FeatureOrder is the feature layout every artifact must declare
var FeatureOrder = []string{"energy", "spectral_centroid"}

// maxDepth bounds tree walks so a malformed artifact cannot loop
const maxDepth = 64

var (
	// ErrModelLoad is returned when the artifact is missing, unreadable or invalid
	ErrModelLoad = errors.New("classifier model load failed")
	// ErrInput is returned by Predict for malformed feature vectors
	ErrInput = errors.New("invalid classifier input")
)

// Classifier maps a feature vector to a binary label
type Classifier interface {
	Predict(features []float64) (bool, error)
}

// Kind selects how an artifact is evaluated
type Kind string

const (
	// KindForest is a majority vote over decision trees
	KindForest Kind = "forest"
	// KindLogistic is a logistic regression
	KindLogistic Kind = "logistic"
)

// Node is one decision-tree node. Leaves carry Value; splits send
// features[Feature] <= Threshold to Left, everything else to Right
type Node struct {
	Leaf      bool    `json:"leaf,omitempty"`
	Value     float64 `json:"value,omitempty"`
	Feature   int     `json:"feature,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
	Left      int     `json:"left,omitempty"`
	Right     int     `json:"right,omitempty"`
}

// Tree is a flattened decision tree rooted at Nodes[0]
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Artifact is the on-disk model description
type Artifact struct {
	Schema    string    `json:"schema"`
	Features  []string  `json:"features"`
	Kind      Kind      `json:"kind"`
	Threshold float64   `json:"threshold"`
	Trees     []Tree    `json:"trees,omitempty"`
	Weights   []float64 `json:"weights,omitempty"`
	Bias      float64   `json:"bias,omitempty"`
}

// Model is a validated, immutable classifier
type Model struct {
	artifact Artifact
}

// Load reads and validates an artifact file
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelLoad, err)
	}
	return Parse(data)
}

// Parse validates an artifact held in memory
func Parse(data []byte) (*Model, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: failed to parse artifact: %w", ErrModelLoad, err)
	}
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelLoad, err)
	}
	return &Model{artifact: a}, nil
}

// Validate checks the schema, the pinned feature order and the model body
func (a *Artifact) Validate() error {
	if a.Schema != SchemaV1 {
		return fmt.Errorf("unsupported schema %q (want %q)", a.Schema, SchemaV1)
	}
	if !slices.Equal(a.Features, FeatureOrder) {
		return fmt.Errorf("feature order %v does not match %v", a.Features, FeatureOrder)
	}

	switch a.Kind {
	case KindForest:
		if len(a.Trees) == 0 {
			return fmt.Errorf("forest has no trees")
		}
		for i, tree := range a.Trees {
			if err := tree.validate(len(FeatureOrder)); err != nil {
				return fmt.Errorf("tree %d: %w", i, err)
			}
		}
	case KindLogistic:
		if len(a.Weights) != len(FeatureOrder) {
			return fmt.Errorf("logistic model needs %d weights, got %d", len(FeatureOrder), len(a.Weights))
		}
	default:
		return fmt.Errorf("unknown model kind %q", a.Kind)
	}
	return nil
}

func (t Tree) validate(numFeatures int) error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("empty tree")
	}
	for i, n := range t.Nodes {
		if n.Leaf {
			continue
		}
		if n.Feature < 0 || n.Feature >= numFeatures {
			return fmt.Errorf("node %d: feature index %d out of range", i, n.Feature)
		}
		if n.Left <= 0 || n.Left >= len(t.Nodes) || n.Right <= 0 || n.Right >= len(t.Nodes) {
			return fmt.Errorf("node %d: child index out of range", i)
		}
	}
	return t.checkReachable()
}

// checkReachable walks from the root and rejects any node reached twice or
// deeper than maxDepth, so every path ends at a leaf
func (t Tree) checkReachable() error {
	type frame struct{ idx, depth int }
	seen := make([]bool, len(t.Nodes))
	stack := []frame{{0, 0}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[f.idx] {
			return fmt.Errorf("node %d: reached twice (cycle or shared child)", f.idx)
		}
		seen[f.idx] = true
		n := t.Nodes[f.idx]
		if n.Leaf {
			continue
		}
		if f.depth+1 >= maxDepth {
			return fmt.Errorf("node %d: exceeds max depth %d", f.idx, maxDepth)
		}
		stack = append(stack, frame{n.Left, f.depth + 1}, frame{n.Right, f.depth + 1})
	}
	return nil
}

// Predict returns the label for features laid out as FeatureOrder
func (m *Model) Predict(features []float64) (bool, error) {
	if len(features) != len(FeatureOrder) {
		return false, fmt.Errorf("%w: expected %d features, got %d", ErrInput, len(FeatureOrder), len(features))
	}
	for i, f := range features {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false, fmt.Errorf("%w: feature %s is %v", ErrInput, FeatureOrder[i], f)
		}
	}

	score, err := m.Score(features)
	if err != nil {
		return false, err
	}
	return score >= m.artifact.Threshold, nil
}

// Score returns the model's positive-class score in [0, 1]
func (m *Model) Score(features []float64) (float64, error) {
	switch m.artifact.Kind {
	case KindLogistic:
		z := m.artifact.Bias
		for i, w := range m.artifact.Weights {
			z += w * features[i]
		}
		return 1 / (1 + math.Exp(-z)), nil
	default:
		var sum float64
		for i, tree := range m.artifact.Trees {
			v, err := tree.eval(features)
			if err != nil {
				return 0, fmt.Errorf("tree %d: %w", i, err)
			}
			sum += v
		}
		return sum / float64(len(m.artifact.Trees)), nil
	}
}

func (t Tree) eval(features []float64) (float64, error) {
	idx := 0
	for depth := 0; depth < maxDepth; depth++ {
		n := t.Nodes[idx]
		if n.Leaf {
			return n.Value, nil
		}
		if features[n.Feature] <= n.Threshold {
			idx = n.Left
		} else {
			idx = n.Right
		}
	}
	return 0, fmt.Errorf("exceeded max depth %d", maxDepth)
}

// Kind returns the artifact kind
func (m *Model) Kind() Kind {
	return m.artifact.Kind
}

// Func adapts a function to the Classifier interface
type Func func(features []float64) (bool, error)

// Predict calls f
func (f Func) Predict(features []float64) (bool, error) {
	return f(features)
}
