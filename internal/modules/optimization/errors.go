package optimization

import "errors"

var (
	// ErrInvalidInput is returned for malformed problems (dimension mismatch,
	// non-positive risk aversion, non-finite inputs).
	ErrInvalidInput = errors.New("invalid optimization input")
	// ErrNumericalInstability is returned when the risk matrix is not positive
	// semi-definite and no conditioning is configured, or when the solver
	// produces non-finite weights.
	ErrNumericalInstability = errors.New("numerical instability")
	// ErrSingularMatrix is returned when the KKT system cannot be solved.
	ErrSingularMatrix = errors.New("singular matrix")
	// ErrInfeasible is returned when the solver's output violates the budget or
	// no-short constraints. It signals a solver defect rather than bad input.
	ErrInfeasible = errors.New("infeasible allocation")
)
