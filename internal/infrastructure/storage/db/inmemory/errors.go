package inmemory

import "errors"

var (
	// ErrListingNotFound ...
	ErrListingNotFound = errors.New("listing not found")
	// ErrRecordNotFound ...
	ErrRecordNotFound = errors.New("auction record not found")
	// ErrSecretNotFound ...
	ErrSecretNotFound = errors.New("bid secret not found")
	// ErrListingAlreadyExists ...
	ErrListingAlreadyExists = errors.New("listing already exists")
)
