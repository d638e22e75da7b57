package classify

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/SteelMorgan/cwtail/internal/fetcher"
)

// DefaultRateLimitDelay is the pause applied after a throttled fetch
const DefaultRateLimitDelay = time.Second

// Kind is the class of a failed fetch
type Kind int

const (
	KindTransport Kind = iota
	KindCredentials
	KindRateLimited
	KindUnclassified
)

func (k Kind) String() string {
	switch k {
	case KindCredentials:
		return "credentials"
	case KindRateLimited:
		return "rate_limited"
	case KindUnclassified:
		return "unclassified"
	default:
		return "transport"
	}
}

// Action tells the scheduler what to do after a failed fetch
type Action int

const (
	// ActionContinue logs the failure and moves on to the next group
	ActionContinue Action = iota
	// ActionBackoff pauses for Decision.Delay before the next group
	ActionBackoff
)

func (a Action) String() string {
	if a == ActionBackoff {
		return "backoff"
	}
	return "continue"
}

// Decision is the result of classifying a fetch failure
type Decision struct {
	Kind   Kind
	Action Action
	Delay  time.Duration // Only set for ActionBackoff
	Detail string        // Raw message to report
}

// throttlingCodes are service error codes meaning the caller is being rate limited
var throttlingCodes = map[string]struct{}{
	"ThrottlingException":      {},
	"Throttling":               {},
	"TooManyRequestsException": {},
	"RequestLimitExceeded":     {},
	"RequestThrottled":         {},
}

// Classifier maps fetch failures to a kind and an action.
// It holds no state besides its configuration.
type Classifier struct {
	rateLimitDelay time.Duration
}

// New creates a Classifier. Non-positive rateLimitDelay selects DefaultRateLimitDelay.
func New(rateLimitDelay time.Duration) *Classifier {
	if rateLimitDelay <= 0 {
		rateLimitDelay = DefaultRateLimitDelay
	}
	return &Classifier{rateLimitDelay: rateLimitDelay}
}

// Classify maps err to a Decision. No kind is fatal.
func (c *Classifier) Classify(err error) Decision {
	if err == nil {
		return Decision{Kind: KindTransport, Action: ActionContinue}
	}

	var credErr *fetcher.CredentialsError
	if errors.As(err, &credErr) {
		return Decision{
			Kind:   KindCredentials,
			Action: ActionContinue,
			Detail: err.Error(),
		}
	}

	var apiErr *fetcher.APIError
	if errors.As(err, &apiErr) {
		if IsThrottling(apiErr) {
			return Decision{
				Kind:   KindRateLimited,
				Action: ActionBackoff,
				Delay:  c.rateLimitDelay,
				Detail: apiErr.Message,
			}
		}
		return Decision{
			Kind:   KindUnclassified,
			Action: ActionContinue,
			Detail: apiErr.Message,
		}
	}

	detail := err.Error()
	if errors.Is(err, context.DeadlineExceeded) {
		detail = "fetch timed out: " + detail
	}
	return Decision{
		Kind:   KindTransport,
		Action: ActionContinue,
		Detail: detail,
	}
}

// IsThrottling checks whether a structured API error signals rate limiting
func IsThrottling(apiErr *fetcher.APIError) bool {
	if apiErr == nil {
		return false
	}
	if _, ok := throttlingCodes[apiErr.Code]; ok {
		return true
	}
	if apiErr.StatusCode == 429 {
		return true
	}
	return strings.Contains(strings.ToLower(apiErr.Message), "rate exceeded")
}
