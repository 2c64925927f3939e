package scoring

import "errors"

// ErrInvalidWeights reports a weight table that cannot be used.
var ErrInvalidWeights = errors.New("invalid scoring weights")
