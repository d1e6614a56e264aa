package upstream

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	apperrors "github.com/openclaw/userbot-server-go/internal/errors"
)

// RPCError is an error reported by the upstream service itself, as opposed to
// a transport failure reaching it.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rule struct {
	markers []string
	reason  apperrors.Reason
	message string
}

var rules = []rule{
	{[]string{"SESSION_PASSWORD_NEEDED"}, apperrors.ReasonSecondFactorRequired, "Two-factor password required"},
	{[]string{"PASSWORD_HASH_INVALID", "PASSWORD_INVALID"}, apperrors.ReasonInvalidPassword, "Invalid two-factor password"},
	{[]string{"PHONE_CODE_EXPIRED"}, apperrors.ReasonCodeExpired, "Verification code has expired, request a new one"},
	{[]string{"PHONE_CODE_INVALID", "PHONE_CODE_EMPTY"}, apperrors.ReasonInvalidCode, "Invalid verification code"},
	{[]string{"PHONE_NUMBER_BANNED", "USER_DEACTIVATED_BAN"}, apperrors.ReasonBanned, "This phone number is banned"},
	{[]string{"PHONE_NUMBER_INVALID", "PHONE_NUMBER_UNOCCUPIED"}, apperrors.ReasonInvalidPhone, "Invalid phone number format"},
	{[]string{"API_ID_INVALID", "API_ID_PUBLISHED_FLOOD", "API_HASH_INVALID"}, apperrors.ReasonInvalidCredentials, "Invalid API credentials"},
	{[]string{"FLOOD_WAIT", "FLOOD", "A WAIT OF"}, apperrors.ReasonRateLimited, "Too many attempts, try again later"},
}

var waitSeconds = regexp.MustCompile(`(?:FLOOD_WAIT_|A WAIT OF )(\d+)`)

// Classify maps any error returned by the upstream into the application error
// taxonomy. It is the only place raw upstream messages are inspected.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if apperrors.IsAppError(err) {
		return err
	}

	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return apperrors.Wrap(apperrors.ErrCodeInternal, "Upstream call timed out", err)
		}
		return apperrors.Wrap(apperrors.ErrCodeInternal, "Upstream call failed", err)
	}

	upper := strings.ToUpper(rpcErr.Message)
	for _, r := range rules {
		for _, marker := range r.markers {
			if !strings.Contains(upper, marker) {
				continue
			}
			appErr := apperrors.UpstreamRejected(r.reason, r.message).WithCause(err)
			if r.reason == apperrors.ReasonRateLimited {
				if m := waitSeconds.FindStringSubmatch(upper); m != nil {
					seconds, _ := strconv.Atoi(m[1])
					appErr.WithDetails(map[string]int{"retryAfterSeconds": seconds})
				}
			}
			return appErr
		}
	}

	return apperrors.UpstreamRejected(apperrors.ReasonUnknown, "The messaging service rejected the request").WithCause(err)
}
