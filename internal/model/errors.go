package model

import "errors"

// Error taxonomy for the verification pipeline. Containment scope widens
// from per-query to per-claim to per-job; only extraction failures and
// fatal infrastructure errors fail a whole job.
var (
	// ErrExtractionFailure means the extractor produced no claims; fatal to the job.
	ErrExtractionFailure = errors.New("claim extraction failed")

	// ErrReasoningUnavailable means a reasoning capability call failed; retried
	// once per debate state, then the claim degrades to Unverified.
	ErrReasoningUnavailable = errors.New("reasoning capability unavailable")

	// ErrRetrievalTimeout means one search query timed out; non-fatal to the claim.
	ErrRetrievalTimeout = errors.New("retrieval timed out")

	// ErrRetrievalFailure means one search query failed; non-fatal to the claim.
	ErrRetrievalFailure = errors.New("retrieval failed")

	// ErrCacheFailure means an evidence cache operation failed; the call
	// bypasses the cache and continues.
	ErrCacheFailure = errors.New("evidence cache failure")

	// ErrCancelled means the job was cancelled at a state boundary.
	ErrCancelled = errors.New("job cancelled")

	// ErrNoInput means the submitted input carried no usable material.
	ErrNoInput = errors.New("no usable input: provide text, url, image, or audio")

	// ErrJobNotFound means the requested job id is unknown.
	ErrJobNotFound = errors.New("job not found")
)
