// Package classify defines the per-patch classifier capability and a
// default heuristic implementation. A small CNN classifier is an
// external collaborator (spec Non-goal: training the classifier); this
// package only specifies the interface it must satisfy.
package classify

import "github.com/rgbond/antctl/internal/frame"

// Class indices into the probability vector returned by Classify,
// matching the external classifier's fixed contract.
const (
	ClassBackground = 0
	ClassAnt        = 1
	ClassLaser      = 2
)

// PatchSize is the fixed patch dimension classifiers operate on.
const PatchSize = 28

// Probs is a 3-vector of class probabilities indexed
// {background, ant, laser}.
type Probs [3]float64

// Classifier maps a frame and a center point to class probabilities
// over a PatchSize x PatchSize patch. Implementations must return the
// zero Probs for an out-of-bounds patch.
type Classifier interface {
	Classify(img *frame.Image, cx, cy int) Probs
}

// Heuristic is the always-available, non-neural Classifier: it does not
// look at the patch and reports every in-bounds point as background. It exists so
// callers have a Classifier to depend on even when no CNN is wired in;
// the real per-blob ant/laser scoring heuristics in internal/tracker
// and internal/laser do not go through this path (they score blobs
// directly, per spec's heuristic scoring rules) and only the explicit
// "-N neural classifier" mode uses a Classifier at all.
type Heuristic struct{}

// Classify returns a degenerate, always-background verdict: the
// heuristic path does not attempt patch classification (spec: the
// heuristic scoring in F/G operates on blob geometry and pixel counts
// directly, never through this interface).
func (Heuristic) Classify(img *frame.Image, cx, cy int) Probs {
	if !img.InBounds(cx, cy) {
		return Probs{}
	}
	return Probs{1, 0, 0}
}

var _ Classifier = Heuristic{}
