package tensor

import "github.com/pkg/errors"

// Combine applies op element-wise to a and b following the restricted broadcasting rule
// (see BroadcastShapes) and returns a new tensor with the broadcast shape.
func Combine[T Float](a, b *Tensor[T], op func(x, y T) T) (*Tensor[T], error) {
	shape, err := BroadcastShapes(a.shape, b.shape)
	if err != nil {
		return nil, err
	}
	out := FromShape[T](shape)
	av, bv := a.Values(), b.Values()
	// The lower-rank operand repeats with a period equal to its own size.
	for k := range out.data {
		out.data[k] = op(av[k%len(av)], bv[k%len(bv)])
	}
	return out, nil
}

// Add returns a + b.
func Add[T Float](a, b *Tensor[T]) (*Tensor[T], error) {
	return Combine(a, b, func(x, y T) T { return x + y })
}

// Sub returns a - b.
func Sub[T Float](a, b *Tensor[T]) (*Tensor[T], error) {
	return Combine(a, b, func(x, y T) T { return x - y })
}

// Mul returns the element-wise product a * b.
func Mul[T Float](a, b *Tensor[T]) (*Tensor[T], error) {
	return Combine(a, b, func(x, y T) T { return x * y })
}

// Div returns the element-wise quotient a / b.
func Div[T Float](a, b *Tensor[T]) (*Tensor[T], error) {
	return Combine(a, b, func(x, y T) T { return x / y })
}

// CombineAssign replaces every element x of t by op(x, y), y being the matching element of
// other. other must have t's shape or be a trailing-dims suffix of it.
func (t *Tensor[T]) CombineAssign(other *Tensor[T], op func(x, y T) T) error {
	if !t.shape.HasSuffix(other.shape) {
		return errors.Wrapf(ErrShapeMismatch, "cannot combine shape %s into shape %s: "+
			"the right operand must match the trailing dimensions", other.shape, t.shape)
	}
	values := other.Values()
	t.positions(func(k, pos int) {
		t.data[pos] = op(t.data[pos], values[k%len(values)])
	})
	return nil
}

// AddAssign adds other element-wise to t.
func (t *Tensor[T]) AddAssign(other *Tensor[T]) error {
	return t.CombineAssign(other, func(x, y T) T { return x + y })
}

// SubAssign subtracts other element-wise from t.
func (t *Tensor[T]) SubAssign(other *Tensor[T]) error {
	return t.CombineAssign(other, func(x, y T) T { return x - y })
}

// MulAssign multiplies t element-wise by other.
func (t *Tensor[T]) MulAssign(other *Tensor[T]) error {
	return t.CombineAssign(other, func(x, y T) T { return x * y })
}

// DivAssign divides t element-wise by other.
func (t *Tensor[T]) DivAssign(other *Tensor[T]) error {
	return t.CombineAssign(other, func(x, y T) T { return x / y })
}

// AddScalar adds v to every element.
func (t *Tensor[T]) AddScalar(v T) {
	t.Apply(func(x T) T { return x + v })
}

// MulScalar multiplies every element by v.
func (t *Tensor[T]) MulScalar(v T) {
	t.Apply(func(x T) T { return x * v })
}
