package cloudwatch

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/SteelMorgan/cwtail/internal/classify"
	"github.com/SteelMorgan/cwtail/internal/domain"
	"github.com/SteelMorgan/cwtail/internal/fetcher"
	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	describeInputs []*cloudwatchlogs.DescribeLogGroupsInput
	describeOut    *cloudwatchlogs.DescribeLogGroupsOutput
	filterInputs   []cloudwatchlogs.FilterLogEventsInput
	filterOuts     []*cloudwatchlogs.FilterLogEventsOutput
	err            error
}

func (f *fakeAPI) DescribeLogGroups(ctx context.Context, params *cloudwatchlogs.DescribeLogGroupsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.DescribeLogGroupsOutput, error) {
	f.describeInputs = append(f.describeInputs, params)
	if f.err != nil {
		return nil, f.err
	}
	return f.describeOut, nil
}

func (f *fakeAPI) FilterLogEvents(ctx context.Context, params *cloudwatchlogs.FilterLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.FilterLogEventsOutput, error) {
	f.filterInputs = append(f.filterInputs, *params)
	if f.err != nil {
		return nil, f.err
	}
	idx := len(f.filterInputs) - 1
	if idx >= len(f.filterOuts) {
		return &cloudwatchlogs.FilterLogEventsOutput{}, nil
	}
	return f.filterOuts[idx], nil
}

func TestListGroups(t *testing.T) {
	api := &fakeAPI{describeOut: &cloudwatchlogs.DescribeLogGroupsOutput{
		LogGroups: []types.LogGroup{
			{LogGroupName: aws.String("/ecs/svc-a")},
			{},
			{LogGroupName: aws.String("/ecs/svc-b")},
		},
		NextToken: aws.String("next"),
	}}
	c := NewWithAPI(api, 1)

	page, err := c.ListGroups(context.Background(), fetcher.ListGroupsRequest{Limit: 1, Prefix: "/ecs/", NextToken: "tok"})
	require.NoError(t, err)

	assert.Equal(t, []domain.LogGroup{{Name: "/ecs/svc-a"}, {Name: "/ecs/svc-b"}}, page.Groups)
	assert.Equal(t, "next", page.NextToken)

	require.Len(t, api.describeInputs, 1)
	in := api.describeInputs[0]
	assert.Equal(t, int32(1), aws.ToInt32(in.Limit))
	assert.Equal(t, "/ecs/", aws.ToString(in.LogGroupNamePrefix))
	assert.Equal(t, "tok", aws.ToString(in.NextToken))
}

func TestListGroupsAbsentListAndLimitClamp(t *testing.T) {
	api := &fakeAPI{describeOut: &cloudwatchlogs.DescribeLogGroupsOutput{}}
	c := NewWithAPI(api, 1)

	page, err := c.ListGroups(context.Background(), fetcher.ListGroupsRequest{Limit: 500})
	require.NoError(t, err)

	assert.Nil(t, page.Groups)
	assert.Empty(t, page.NextToken)
	assert.Equal(t, int32(maxListLimit), aws.ToInt32(api.describeInputs[0].Limit))
	assert.Nil(t, api.describeInputs[0].LogGroupNamePrefix)
	assert.Nil(t, api.describeInputs[0].NextToken)
}

func TestFilterEventsFollowsPages(t *testing.T) {
	api := &fakeAPI{filterOuts: []*cloudwatchlogs.FilterLogEventsOutput{
		{
			Events: []types.FilteredLogEvent{
				{EventId: aws.String("1"), Timestamp: aws.Int64(1000), Message: aws.String("x"), LogStreamName: aws.String("s1"), IngestionTime: aws.Int64(1100)},
			},
			NextToken: aws.String("p2"),
		},
		{
			Events: []types.FilteredLogEvent{
				{EventId: aws.String("2"), Timestamp: aws.Int64(2000), Message: aws.String("y")},
			},
			NextToken: aws.String("p3"),
		},
	}}
	c := NewWithAPI(api, 2)

	events, err := c.FilterEvents(context.Background(), "svc-a", 500)
	require.NoError(t, err)

	assert.Equal(t, []domain.LogEvent{
		{EventID: "1", Timestamp: 1000, Message: "x", SourceGroup: "svc-a", LogStream: "s1", IngestionTime: 1100},
		{EventID: "2", Timestamp: 2000, Message: "y", SourceGroup: "svc-a"},
	}, events)

	require.Len(t, api.filterInputs, 2, "stops at the page limit")
	assert.Equal(t, "svc-a", aws.ToString(api.filterInputs[0].LogGroupName))
	assert.Equal(t, int64(500), aws.ToInt64(api.filterInputs[0].StartTime))
	assert.Nil(t, api.filterInputs[0].NextToken)
	assert.Nil(t, api.filterInputs[0].EndTime)
	assert.Equal(t, "p2", aws.ToString(api.filterInputs[1].NextToken))
}

func TestFilterEventsSingleCallByDefault(t *testing.T) {
	api := &fakeAPI{filterOuts: []*cloudwatchlogs.FilterLogEventsOutput{
		{NextToken: aws.String("more")},
	}}
	c := NewWithAPI(api, 0)

	events, err := c.FilterEvents(context.Background(), "svc-a", 0)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Len(t, api.filterInputs, 1)
}

func TestErrorMappingFeedsClassifier(t *testing.T) {
	classifier := classify.New(0)

	tests := []struct {
		name string
		err  error
		want classify.Kind
	}{
		{
			name: "throttling",
			err:  &smithy.GenericAPIError{Code: "ThrottlingException", Message: "Rate exceeded"},
			want: classify.KindRateLimited,
		},
		{
			name: "unknown code with rate exceeded body",
			err:  &smithy.GenericAPIError{Code: "UnknownError", Message: "Rate exceeded"},
			want: classify.KindRateLimited,
		},
		{
			name: "rejected token",
			err:  &smithy.GenericAPIError{Code: "UnrecognizedClientException", Message: "The security token included in the request is invalid."},
			want: classify.KindCredentials,
		},
		{
			name: "no credential chain",
			err:  missingCredentialsError(),
			want: classify.KindCredentials,
		},
		{
			name: "empty static credentials",
			err: &smithy.OperationError{
				ServiceID:     "CloudWatch Logs",
				OperationName: "FilterLogEvents",
				Err:           fmt.Errorf("get identity: get credentials: %w", errors.New("failed to refresh cached credentials, static credentials are empty")),
			},
			want: classify.KindCredentials,
		},
		{
			name: "signing failure",
			err:  fmt.Errorf("operation error: %w", &v4.SigningError{Err: errors.New("compute payload sha256")}),
			want: classify.KindCredentials,
		},
		{
			name: "resource not found",
			err:  &types.ResourceNotFoundException{Message: aws.String("The specified log group does not exist.")},
			want: classify.KindUnclassified,
		},
		{
			name: "transport",
			err:  errors.New("dial tcp: lookup logs.sa-east-1.amazonaws.com: no such host"),
			want: classify.KindTransport,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewWithAPI(&fakeAPI{err: tt.err}, 1)

			_, err := c.FilterEvents(context.Background(), "svc-a", 0)
			require.Error(t, err)
			assert.Equal(t, tt.want, classifier.Classify(err).Kind)
		})
	}
}

func TestMapErrorKeepsContextErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := mapError(ctx, opFilterLogEvents, &smithy.GenericAPIError{Code: "ThrottlingException"})
	require.ErrorIs(t, err, context.Canceled)

	var apiErr *fetcher.APIError
	assert.False(t, errors.As(err, &apiErr))
}

// missingCredentialsError reproduces the chain the SDK returns when neither
// environment, shared files nor IMDS provide credentials
func missingCredentialsError() error {
	imds := fmt.Errorf("no EC2 IMDS role found, operation error ec2imds: GetMetadata, request canceled, %w", context.DeadlineExceeded)
	return &smithy.OperationError{
		ServiceID:     "CloudWatch Logs",
		OperationName: "FilterLogEvents",
		Err:           fmt.Errorf("get identity: %w", fmt.Errorf("get credentials: %w", fmt.Errorf("failed to refresh cached credentials, %w", imds))),
	}
}

func TestMissingCredentialChainIsCredentialsFailure(t *testing.T) {
	c := NewWithAPI(&fakeAPI{err: missingCredentialsError()}, 1)

	_, err := c.FilterEvents(context.Background(), "svc-a", 0)
	require.Error(t, err)

	var credErr *fetcher.CredentialsError
	require.True(t, errors.As(err, &credErr))
	assert.Equal(t, opFilterLogEvents, credErr.Operation)
	assert.Contains(t, err.Error(), "failed to refresh cached credentials")

	decision := classify.New(0).Classify(err)
	assert.Equal(t, classify.KindCredentials, decision.Kind)
	assert.Equal(t, "credentials", decision.Kind.String())
}
