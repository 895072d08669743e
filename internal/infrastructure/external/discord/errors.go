package discord

import (
	"errors"
	"net"
	"net/http"
	"net/url"

	"github.com/bwmarrin/discordgo"

	"github.com/seasons-hub/seasons-bot/internal/domain/shared"
)

// classify maps a discordgo error onto the shared taxonomy. nil stays nil.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	if isRateLimit(err) {
		return shared.WrapError("platform", op, shared.ErrRateLimited, "rate limited", err)
	}

	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		switch restErr.Response.StatusCode {
		case http.StatusForbidden:
			return shared.WrapError("platform", op, shared.ErrForbidden, "missing permission", err)
		case http.StatusNotFound:
			return shared.WrapError("platform", op, shared.ErrNotFound, "unknown entity", err)
		}
	}

	return shared.WrapError("platform", op, shared.ErrTransientExternal, "request failed", err)
}

func isRateLimit(err error) bool {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil &&
		restErr.Response.StatusCode == http.StatusTooManyRequests {
		return true
	}

	var rlErr *discordgo.RateLimitError
	return errors.As(err, &rlErr)
}

// ClassifyConnectError categorizes a failure to open or keep the gateway
// session for the reconnect supervisor.
func ClassifyConnectError(err error) *shared.ConnectionError {
	if err == nil {
		return &shared.ConnectionError{Category: shared.CategoryClosed}
	}

	var connErr *shared.ConnectionError
	if errors.As(err, &connErr) {
		return connErr
	}

	if isRateLimit(err) {
		return &shared.ConnectionError{Category: shared.CategoryRateLimited, Err: err}
	}

	var restErr *discordgo.RESTError
	var netErr net.Error
	var urlErr *url.Error
	if errors.As(err, &restErr) || errors.As(err, &netErr) || errors.As(err, &urlErr) {
		return &shared.ConnectionError{Category: shared.CategoryHTTP, Err: err}
	}

	return &shared.ConnectionError{Category: shared.CategoryUnexpected, Err: err}
}
