package nn

import (
	"math"
)

// Activate applies the activation function to a single value.
func Activate[T Float](v T, activation ActivationType) T {
	switch activation {
	case ActivationSigmoid:
		return T(1.0 / (1.0 + math.Exp(-float64(v))))
	case ActivationTanh:
		return T(math.Tanh(float64(v)))
	default:
		return v
	}
}

func sigmoid[T Float](v T) T {
	return Activate(v, ActivationSigmoid)
}

func tanh[T Float](v T) T {
	return Activate(v, ActivationTanh)
}
