package google

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"

	apperr "courserag/internal/errors"
)

var (
	// ErrUnauthorized indicates invalid or expired credentials.
	ErrUnauthorized = errors.New("calendar: unauthorised (invalid credentials)")
	// ErrForbidden indicates missing scopes or calendar permissions.
	ErrForbidden = errors.New("calendar: forbidden (insufficient permissions)")
	// ErrNotFound indicates the calendar does not exist.
	ErrNotFound = errors.New("calendar: calendar not found")
	// ErrRateLimited indicates the API rate limit was exceeded.
	ErrRateLimited = errors.New("calendar: rate limit exceeded")
	// ErrNoToken means calendar-auth has not been run yet.
	ErrNoToken = errors.New("calendar: no saved token, run `courserag calendar-auth`")
)

func statusCode(err error) int {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	return 0
}

// IsUnauthorized reports whether err means the credentials were rejected.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized) || statusCode(err) == http.StatusUnauthorized
}

// IsRateLimited reports whether err is a rate limit response. The Calendar
// API also signals rate limits with 403 rateLimitExceeded.
func IsRateLimited(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	if gerr.Code == http.StatusTooManyRequests {
		return true
	}
	for _, item := range gerr.Errors {
		if item.Reason == "rateLimitExceeded" || item.Reason == "userRateLimitExceeded" {
			return true
		}
	}
	return false
}

// WrapError converts a Calendar API error into a typed error. Rejected
// credentials become AUTHENTICATION errors.
func WrapError(err error) error {
	if err == nil {
		return nil
	}
	if IsRateLimited(err) {
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	switch statusCode(err) {
	case http.StatusUnauthorized:
		return apperr.NewAuthentication("calendar", fmt.Errorf("%w: %v", ErrUnauthorized, err))
	case http.StatusForbidden:
		return fmt.Errorf("%w: %v", ErrForbidden, err)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case 0:
		return err
	default:
		return fmt.Errorf("calendar API error: %w", err)
	}
}
