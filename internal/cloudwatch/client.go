package cloudwatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/SteelMorgan/cwtail/internal/domain"
	"github.com/SteelMorgan/cwtail/internal/fetcher"
	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/rs/zerolog/log"
)

const (
	opDescribeLogGroups = "DescribeLogGroups"
	opFilterLogEvents   = "FilterLogEvents"

	// DescribeLogGroups rejects limits above 50
	maxListLimit = 50
)

// credentialCodes are service error codes caused by missing or rejected credentials
var credentialCodes = map[string]struct{}{
	"UnrecognizedClientException": {},
	"InvalidSignatureException":   {},
	"ExpiredTokenException":       {},
	"ExpiredToken":                {},
	"InvalidClientTokenId":        {},
	"IncompleteSignature":         {},
	"MissingAuthenticationToken":  {},
}

// credentialMarkers appear in errors raised while the SDK resolves an identity,
// before any request leaves the process
var credentialMarkers = []string{
	"get identity:",
	"get credentials:",
	"failed to refresh cached credentials",
	"failed to retrieve credentials",
	"no EC2 IMDS role found",
	"static credentials are empty",
}

// API is the subset of the CloudWatch Logs client used by the tailer
type API interface {
	DescribeLogGroups(ctx context.Context, params *cloudwatchlogs.DescribeLogGroupsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.DescribeLogGroupsOutput, error)
	FilterLogEvents(ctx context.Context, params *cloudwatchlogs.FilterLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.FilterLogEventsOutput, error)
}

// Config describes how to reach CloudWatch Logs
type Config struct {
	Region        string
	Profile       string // Shared config profile, empty for the default chain
	Endpoint      string // Custom endpoint (e.g. LocalStack), empty for AWS
	MaxEventPages int    // FilterLogEvents pages followed per fetch (default: 1)
}

// Client adapts CloudWatch Logs to fetcher.EventFetcher
type Client struct {
	api           API
	maxEventPages int
}

// New loads AWS configuration and creates a client.
// The SDK retryer is limited to a single attempt so that throttling reaches
// the caller's classifier instead of being retried inside the call.
func New(ctx context.Context, cfg Config) (*Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRetryMaxAttempts(1),
	}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	api := cloudwatchlogs.NewFromConfig(awsCfg, func(o *cloudwatchlogs.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	log.Info().
		Str("region", awsCfg.Region).
		Str("profile", cfg.Profile).
		Str("endpoint", cfg.Endpoint).
		Msg("CloudWatch Logs client initialized")

	return NewWithAPI(api, cfg.MaxEventPages), nil
}

// NewWithAPI wraps an existing API implementation
func NewWithAPI(api API, maxEventPages int) *Client {
	if maxEventPages <= 0 {
		maxEventPages = 1
	}
	return &Client{api: api, maxEventPages: maxEventPages}
}

// ListGroups fetches one page of log groups
func (c *Client) ListGroups(ctx context.Context, req fetcher.ListGroupsRequest) (fetcher.ListGroupsPage, error) {
	limit := req.Limit
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}

	input := &cloudwatchlogs.DescribeLogGroupsInput{
		Limit: aws.Int32(limit),
	}
	if req.Prefix != "" {
		input.LogGroupNamePrefix = aws.String(req.Prefix)
	}
	if req.NextToken != "" {
		input.NextToken = aws.String(req.NextToken)
	}

	out, err := c.api.DescribeLogGroups(ctx, input)
	if err != nil {
		return fetcher.ListGroupsPage{}, mapError(ctx, opDescribeLogGroups, err)
	}

	page := fetcher.ListGroupsPage{NextToken: aws.ToString(out.NextToken)}
	if out.LogGroups != nil {
		page.Groups = make([]domain.LogGroup, 0, len(out.LogGroups))
		for _, g := range out.LogGroups {
			// Unnamed groups cannot be polled
			if g.LogGroupName == nil {
				continue
			}
			page.Groups = append(page.Groups, domain.LogGroup{Name: *g.LogGroupName})
		}
	}
	return page, nil
}

// FilterEvents fetches events of group since startMillis, following up to
// maxEventPages continuation tokens
func (c *Client) FilterEvents(ctx context.Context, group string, startMillis int64) ([]domain.LogEvent, error) {
	input := &cloudwatchlogs.FilterLogEventsInput{
		LogGroupName: aws.String(group),
		StartTime:    aws.Int64(startMillis),
	}

	var events []domain.LogEvent
	for page := 1; ; page++ {
		out, err := c.api.FilterLogEvents(ctx, input)
		if err != nil {
			return nil, mapError(ctx, opFilterLogEvents, err)
		}

		for _, e := range out.Events {
			events = append(events, domain.LogEvent{
				EventID:       aws.ToString(e.EventId),
				Timestamp:     aws.ToInt64(e.Timestamp),
				Message:       aws.ToString(e.Message),
				SourceGroup:   group,
				LogStream:     aws.ToString(e.LogStreamName),
				IngestionTime: aws.ToInt64(e.IngestionTime),
			})
		}

		next := aws.ToString(out.NextToken)
		if next == "" || page >= c.maxEventPages {
			break
		}
		input.NextToken = aws.String(next)
	}

	return events, nil
}

// mapError converts SDK failures into the closed fetcher error set.
// Context errors and transport failures are returned unchanged.
func mapError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w (%v)", op, ctxErr, err)
	}

	// Identity resolution may fail on its own internal timeouts (IMDS probe)
	if isCredentialResolutionError(err) {
		return &fetcher.CredentialsError{Operation: op, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if _, ok := credentialCodes[apiErr.ErrorCode()]; ok {
			return &fetcher.CredentialsError{Operation: op, Err: err}
		}

		mapped := &fetcher.APIError{
			Operation: op,
			Code:      apiErr.ErrorCode(),
			Message:   apiErr.ErrorMessage(),
		}
		var respErr *smithyhttp.ResponseError
		if errors.As(err, &respErr) {
			mapped.StatusCode = respErr.HTTPStatusCode()
		}
		return mapped
	}

	return fmt.Errorf("%s: %w", op, err)
}

// isCredentialResolutionError reports whether err comes from the credential chain
// rather than from the service
func isCredentialResolutionError(err error) bool {
	var signErr *v4.SigningError
	if errors.As(err, &signErr) {
		return true
	}

	msg := err.Error()
	for _, marker := range credentialMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
