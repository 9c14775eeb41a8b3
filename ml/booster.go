package ml

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

// Booster evaluates a gradient boosted tree ensemble saved with XGBoost's
// JSON format (Booster.save_model("model.json")). Only gbtree boosters with a
// multi:softprob or multi:softmax objective are supported.
type Booster struct {
	numFeature int
	numClass   int
	baseMargin []float64
	trees      []regTree
}

type regTree struct {
	class int
	nodes []treeNode
}

type treeNode struct {
	left        int
	right       int
	feature     int
	threshold   float32 // split nodes; compared in float32 like XGBoost
	leaf        float64 // leaf nodes
	defaultLeft bool
}

func (n treeNode) isLeaf() bool {
	return n.left < 0
}

type xgbDocument struct {
	Learner struct {
		LearnerModelParam struct {
			BaseScore  string `json:"base_score"`
			NumClass   string `json:"num_class"`
			NumFeature string `json:"num_feature"`
		} `json:"learner_model_param"`
		Objective struct {
			Name string `json:"name"`
		} `json:"objective"`
		GradientBooster struct {
			Name  string `json:"name"`
			Model struct {
				Trees    []xgbTree `json:"trees"`
				TreeInfo []int     `json:"tree_info"`
			} `json:"model"`
		} `json:"gradient_booster"`
	} `json:"learner"`
}

type xgbTree struct {
	LeftChildren    []int      `json:"left_children"`
	RightChildren   []int      `json:"right_children"`
	SplitIndices    []int      `json:"split_indices"`
	SplitConditions []float64  `json:"split_conditions"`
	DefaultLeft     []flexBool `json:"default_left"`
	SplitType       []int      `json:"split_type"`
}

// flexBool accepts both 0/1 and true/false; XGBoost versions differ.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	switch string(bytes.TrimSpace(data)) {
	case "1", "true":
		*b = true
	case "0", "false":
		*b = false
	default:
		return fmt.Errorf("invalid boolean %s", data)
	}
	return nil
}

func LoadBooster(path string) (*Booster, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseBooster(payload)
}

func ParseBooster(payload []byte) (*Booster, error) {
	var doc xgbDocument
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("decode booster: %w", err)
	}
	learner := doc.Learner

	switch learner.Objective.Name {
	case "multi:softprob", "multi:softmax":
	default:
		return nil, fmt.Errorf("unsupported objective %q", learner.Objective.Name)
	}
	if learner.GradientBooster.Name != "gbtree" {
		return nil, fmt.Errorf("unsupported booster %q", learner.GradientBooster.Name)
	}

	numClass, err := strconv.Atoi(learner.LearnerModelParam.NumClass)
	if err != nil || numClass < 2 {
		return nil, fmt.Errorf("invalid num_class %q", learner.LearnerModelParam.NumClass)
	}
	numFeature, err := strconv.Atoi(learner.LearnerModelParam.NumFeature)
	if err != nil || numFeature < 1 {
		return nil, fmt.Errorf("invalid num_feature %q", learner.LearnerModelParam.NumFeature)
	}
	baseMargin, err := parseBaseScore(learner.LearnerModelParam.BaseScore, numClass)
	if err != nil {
		return nil, err
	}

	model := learner.GradientBooster.Model
	if len(model.Trees) == 0 {
		return nil, errors.New("booster has no trees")
	}
	if len(model.TreeInfo) != len(model.Trees) {
		return nil, fmt.Errorf("tree_info has %d entries for %d trees", len(model.TreeInfo), len(model.Trees))
	}

	b := &Booster{
		numFeature: numFeature,
		numClass:   numClass,
		baseMargin: baseMargin,
		trees:      make([]regTree, len(model.Trees)),
	}
	for i, t := range model.Trees {
		class := model.TreeInfo[i]
		if class < 0 || class >= numClass {
			return nil, fmt.Errorf("tree %d: class %d out of range", i, class)
		}
		nodes, err := compileTree(t, numFeature)
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		b.trees[i] = regTree{class: class, nodes: nodes}
	}
	return b, nil
}

// parseBaseScore accepts a scalar ("5E-1") or, from newer XGBoost releases,
// a per-class vector ("[5E-1,5E-1,5E-1]"). An empty value means 0.5.
func parseBaseScore(raw string, numClass int) ([]float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = "0.5"
	}
	raw = strings.TrimSuffix(strings.TrimPrefix(raw, "["), "]")
	parts := strings.Split(raw, ",")

	margins := make([]float64, numClass)
	switch len(parts) {
	case 1:
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid base_score %q: %w", raw, err)
		}
		for i := range margins {
			margins[i] = v
		}
	case numClass:
		for i, p := range parts {
			v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return nil, fmt.Errorf("invalid base_score %q: %w", raw, err)
			}
			margins[i] = v
		}
	default:
		return nil, fmt.Errorf("base_score has %d values for %d classes", len(parts), numClass)
	}
	return margins, nil
}

func compileTree(t xgbTree, numFeature int) ([]treeNode, error) {
	n := len(t.LeftChildren)
	if n == 0 {
		return nil, errors.New("empty tree")
	}
	if len(t.RightChildren) != n || len(t.SplitIndices) != n || len(t.SplitConditions) != n {
		return nil, errors.New("node arrays have different lengths")
	}
	if len(t.DefaultLeft) != 0 && len(t.DefaultLeft) != n {
		return nil, errors.New("default_left length mismatch")
	}
	for _, st := range t.SplitType {
		if st != 0 {
			return nil, errors.New("categorical splits are not supported")
		}
	}

	nodes := make([]treeNode, n)
	for i := 0; i < n; i++ {
		node := treeNode{
			left:    t.LeftChildren[i],
			right:   t.RightChildren[i],
			feature: t.SplitIndices[i],
		}
		if node.isLeaf() {
			node.leaf = t.SplitConditions[i]
		} else {
			node.threshold = float32(t.SplitConditions[i])
		}
		if len(t.DefaultLeft) == n {
			node.defaultLeft = bool(t.DefaultLeft[i])
		}
		if !node.isLeaf() {
			// Children always come after their parent, which rules out cycles.
			if node.left <= i || node.left >= n || node.right <= i || node.right >= n {
				return nil, fmt.Errorf("node %d: invalid children %d/%d", i, node.left, node.right)
			}
			if node.feature < 0 || node.feature >= numFeature {
				return nil, fmt.Errorf("node %d: feature index %d out of range", i, node.feature)
			}
		}
		nodes[i] = node
	}
	return nodes, nil
}

func (b *Booster) NumFeatures() int {
	return b.numFeature
}

func (b *Booster) NumClasses() int {
	return b.numClass
}

// Margins returns the raw per-class scores before softmax.
func (b *Booster) Margins(features []float64) ([]float64, error) {
	if len(features) != b.numFeature {
		return nil, fmt.Errorf("got %d features, want %d", len(features), b.numFeature)
	}
	margins := append([]float64(nil), b.baseMargin...)
	for _, t := range b.trees {
		margins[t.class] += t.leafValue(features)
	}
	return margins, nil
}

func (b *Booster) PredictProba(features []float64) ([]float64, error) {
	margins, err := b.Margins(features)
	if err != nil {
		return nil, err
	}
	return softmax(margins), nil
}

// leafValue walks from the root. Feature values are narrowed to float32
// before the split test, matching how XGBoost stores and compares them.
// NaN is treated as missing and follows the node's default direction.
func (t regTree) leafValue(features []float64) float64 {
	idx := 0
	for {
		node := t.nodes[idx]
		if node.isLeaf() {
			return node.leaf
		}
		v := features[node.feature]
		switch {
		case math.IsNaN(v):
			if node.defaultLeft {
				idx = node.left
			} else {
				idx = node.right
			}
		case float32(v) < node.threshold:
			idx = node.left
		default:
			idx = node.right
		}
	}
}

func softmax(margins []float64) []float64 {
	maxMargin := math.Inf(-1)
	for _, m := range margins {
		if m > maxMargin {
			maxMargin = m
		}
	}
	out := make([]float64, len(margins))
	var sum float64
	for i, m := range margins {
		out[i] = math.Exp(m - maxMargin)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
