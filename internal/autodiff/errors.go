package autodiff

import (
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"

	"github.com/hsandmeyer/snnl-sub000/internal/tensor"
)

// ErrInvalidTopology is returned when the graph wiring is inconsistent: a node gets a second
// producer, a connector is signalled by a node it has no connection for, or a backward call
// reaches a connector without a record producing the calling node.
var ErrInvalidTopology = errors.New("invalid topology")

// Error kinds raised by the tensor layer, re-exported for callers of this package.
var (
	ErrShapeMismatch   = tensor.ErrShapeMismatch
	ErrOutOfRange      = tensor.ErrOutOfRange
	ErrInvalidArgument = tensor.ErrInvalidArgument
)

// catch runs fn and turns an error panic raised inside it (typically an out-of-range element
// access in a kernel) into a returned error. Panics that are not errors are re-raised.
func catch(fn func() error) (err error) {
	if exception := exceptions.TryCatch[error](func() { err = fn() }); exception != nil {
		return exception
	}
	return err
}
