package gmmlib

import "errors"

var (
	// ErrInvalidArgument is wrapped by every error caused by bad sizes,
	// shapes or options passed in by the caller.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNumericalFailure is wrapped by every error caused by the numerics
	// of the fit: an unrepairable covariance matrix, a collapsed mixture or
	// a data point with zero likelihood.
	ErrNumericalFailure = errors.New("numerical failure")
)
