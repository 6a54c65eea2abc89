package domain

import "errors"

var (
	// ErrCanonicalNotFound is returned when no canonical product matches a lookup
	ErrCanonicalNotFound = errors.New("canonical product not found")

	// ErrDuplicateCanonical is returned when an insert collides with an existing
	// canonical row for the same retailer and normalized URL
	ErrDuplicateCanonical = errors.New("canonical product already exists for normalized url")

	// ErrSnapshotNotFound is returned when no active baseline exists for a retailer/category
	ErrSnapshotNotFound = errors.New("baseline snapshot not found")

	// ErrRunNotFound is returned when a run summary cannot be found
	ErrRunNotFound = errors.New("run not found")

	// ErrReviewNotFound is returned when a review item cannot be found
	ErrReviewNotFound = errors.New("review item not found")

	// ErrAlreadyResolved is returned when a decision is posted for a resolved review item
	ErrAlreadyResolved = errors.New("review item already resolved")

	// ErrInvalidDecision is returned when a decision does not apply to the review item kind
	ErrInvalidDecision = errors.New("decision not valid for review item")

	// ErrInvalidTransition is returned when a lifecycle transition is not allowed
	ErrInvalidTransition = errors.New("invalid lifecycle transition")

	// ErrInvalidRequest is returned when request parameters are invalid
	ErrInvalidRequest = errors.New("invalid request parameters")

	// ErrUnknownRetailer is returned when a retailer has no configuration
	ErrUnknownRetailer = errors.New("unknown retailer")

	// ErrInvalidRetailerConfig is returned when a retailer's configuration is missing
	// required sections; runs for that retailer refuse to start
	ErrInvalidRetailerConfig = errors.New("invalid retailer configuration")

	// ErrExtractionExhausted is returned when every provider in a cascade failed
	ErrExtractionExhausted = errors.New("extraction cascade exhausted")

	// ErrProviderQuota is returned when a provider reports its quota is spent
	ErrProviderQuota = errors.New("provider quota exceeded")

	// ErrProviderFailure is returned when a provider request fails
	ErrProviderFailure = errors.New("provider request failed")

	// ErrMalformedResponse is returned when a provider response cannot be decoded
	ErrMalformedResponse = errors.New("malformed provider response")

	// ErrPublishFailed is returned when the publishing collaborator rejects a product
	ErrPublishFailed = errors.New("publish failed")

	// ErrCacheMiss is returned when data is not found in cache
	ErrCacheMiss = errors.New("cache miss")
)
