package tracking

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// Classification is a probability distribution over a fixed, ordered set of
// classes. The class names themselves live in ClassificationData; a
// Classification only carries the probabilities.
type Classification []float64

// ClassificationData holds the ordered class list shared by all
// Classification vectors produced from it.
type ClassificationData struct {
	classes []string
}

// NewClassificationData creates a ClassificationData for the given class
// list. An empty list defaults to a single "Unknown" class.
func NewClassificationData(classes []string) *ClassificationData {
	if len(classes) == 0 {
		classes = []string{"Unknown"}
	}
	owned := make([]string, len(classes))
	copy(owned, classes)
	return &ClassificationData{classes: owned}
}

// Classes returns a copy of the class list.
func (cd *ClassificationData) Classes() []string {
	out := make([]string, len(cd.classes))
	copy(out, cd.classes)
	return out
}

// ClassIndex returns the index of the given class name.
func (cd *ClassificationData) ClassIndex(name string) (int, error) {
	for i, c := range cd.classes {
		if c == name {
			return i, nil
		}
	}
	return 0, errors.Errorf("unknown class %q", name)
}

// Classification builds a probability vector with the given class set to
// probability and the remainder spread uniformly over the other classes.
func (cd *ClassificationData) Classification(name string, probability float64) (Classification, error) {
	idx, err := cd.ClassIndex(name)
	if err != nil {
		return nil, err
	}
	if probability < 0.0 || probability > 1.0 {
		return nil, errors.Errorf("probability %f out of range [0, 1]", probability)
	}
	out := make(Classification, len(cd.classes))
	if len(cd.classes) == 1 {
		out[0] = probability
		return out, nil
	}
	rest := (1.0 - probability) / float64(len(cd.classes)-1)
	for i := range out {
		out[i] = rest
	}
	out[idx] = probability
	return out, nil
}

// Class returns the name of the class with the maximum probability.
func (cd *ClassificationData) Class(c Classification) (string, error) {
	if len(c) != len(cd.classes) {
		return "", errors.Errorf("classification has %d entries, expected %d", len(c), len(cd.classes))
	}
	return cd.classes[floats.MaxIdx(c)], nil
}

// UniformPrior generates a vector assigning the given probability to every
// class.
func (cd *ClassificationData) UniformPrior(probability float64) Classification {
	out := make(Classification, len(cd.classes))
	for i := range out {
		out[i] = probability
	}
	return out
}

// Prior generates a uniform distribution over the class list.
func (cd *ClassificationData) Prior() Classification {
	return cd.UniformPrior(1.0 / float64(len(cd.classes)))
}

// MaxProbability returns the highest class probability in the vector, or 0
// for an empty vector.
func (c Classification) MaxProbability() float64 {
	if len(c) == 0 {
		return 0.0
	}
	return floats.Max(c)
}

// Similarity measures the agreement between two class probability vectors as
// the overlap of the distributions. It is 1.0 for identical distributions
// and 0.0 for disjoint ones. Vectors of different lengths have zero
// similarity.
func Similarity(a, b Classification) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}
	overlap := 0.0
	for i := range a {
		overlap += math.Min(a[i], b[i])
	}
	if overlap > 1.0 {
		return 1.0
	}
	if overlap < 0.0 {
		return 0.0
	}
	return overlap
}

// Distance is the metric counterpart of Similarity, bounded to [0, 1].
func Distance(a, b Classification) float64 {
	return 1.0 - Similarity(a, b)
}

// Combine fuses two class probability vectors with a multiclass Bayes
// update: element-wise product renormalized to sum 1. When the product
// vanishes (fully conflicting one-hot vectors) it falls back to a uniform
// prior.
func Combine(a, b Classification) (Classification, error) {
	if len(a) != len(b) {
		return nil, errors.Errorf("classification size mismatch: %d vs %d", len(a), len(b))
	}
	if len(a) == 0 {
		return nil, errors.New("can't combine empty classifications")
	}
	out := make(Classification, len(a))
	for i := range a {
		out[i] = a[i] * b[i]
	}
	sum := floats.Sum(out)
	if sum <= 1e-15 {
		uniform := 1.0 / float64(len(out))
		for i := range out {
			out[i] = uniform
		}
		return out, nil
	}
	floats.Scale(1.0/sum, out)
	return out, nil
}
