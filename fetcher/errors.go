package fetcher

import (
	"errors"

	"devrank/github"
)

// Common errors
var (
	ErrEmptyLocation = errors.New("location filter cannot be empty")
	ErrInvalidSort   = errors.New("invalid sort dimension")
)

// describe turns a whole-request failure into the text shown to users
func describe(err error) string {
	var apiErr *github.APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr.Error()
	case errors.Is(err, github.ErrConnectivity):
		return github.ErrConnectivity.Error()
	case errors.Is(err, ErrEmptyLocation):
		return ErrEmptyLocation.Error()
	}
	return err.Error()
}
