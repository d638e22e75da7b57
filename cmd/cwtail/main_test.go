package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/SteelMorgan/cwtail/internal/domain"
	"github.com/SteelMorgan/cwtail/internal/fetcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFetcher struct {
	groups []domain.LogGroup
}

func (s *stubFetcher) ListGroups(ctx context.Context, req fetcher.ListGroupsRequest) (fetcher.ListGroupsPage, error) {
	return fetcher.ListGroupsPage{Groups: s.groups}, nil
}

func (s *stubFetcher) FilterEvents(ctx context.Context, group string, startMillis int64) ([]domain.LogEvent, error) {
	return nil, nil
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cwtail.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	t.Setenv("AWS_REGION", "")
	t.Setenv("LOG_LEVEL", "")
	path := writeConfig(t, "aws:\n  region: eu-west-1\ntail:\n  group_prefix: /file/\n")

	root, cc := buildRootCommand()
	root.SetArgs([]string{"--config", path, "--region", "us-east-2", "--no-color", "--log-level", "error"})
	root.SetOut(&bytes.Buffer{})

	require.NoError(t, root.Execute())
	require.NotNil(t, cc.config)

	assert.Equal(t, "us-east-2", cc.config.AWS.Region)
	assert.Equal(t, "/file/", cc.config.Tail.GroupPrefix, "unset flags keep file values")
	assert.True(t, cc.config.Tail.NoColor)
	assert.Equal(t, "error", cc.config.Log.Level)
}

func TestInvalidConfigFails(t *testing.T) {
	path := writeConfig(t, "tail:\n  batch_size: -1\n")

	root := newRootCommand()
	root.SetArgs([]string{"groups", "--config", path})
	root.SetOut(&bytes.Buffer{})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation failed")
}

func TestPrintGroupsAppliesFilter(t *testing.T) {
	t.Setenv("AWS_REGION", "")
	path := writeConfig(t, "aws:\n  region: eu-west-1\n")

	root, cc := buildRootCommand()
	root.SetArgs([]string{"--config", path})
	root.SetOut(&bytes.Buffer{})
	require.NoError(t, root.Execute())

	groups, _, err := root.Find([]string{"groups"})
	require.NoError(t, err)

	var out bytes.Buffer
	groups.SetOut(&out)
	groups.SetContext(context.Background())

	cc.applyFilter([]string{"api"})
	stub := &stubFetcher{groups: []domain.LogGroup{{Name: "/ecs/api"}, {Name: "/ecs/worker"}, {Name: "/lambda/api-auth"}}}

	require.NoError(t, printGroups(groups, cc, stub))
	assert.Equal(t, "/ecs/api\n/lambda/api-auth\n", out.String())
}

func TestWatchRejectsExtraArgs(t *testing.T) {
	root := newRootCommand()
	root.SetArgs([]string{"watch", "a", "b"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})

	assert.Error(t, root.Execute())
}
