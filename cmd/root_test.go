package cmd

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/tululu-archiver/internal/app"
	"github.com/JakeFAU/tululu-archiver/internal/config"
	"github.com/JakeFAU/tululu-archiver/internal/crawler"
)

type fakeRunner struct {
	runErr  error
	result  app.Result
	runs    int
	closes  int
	runCtx  context.Context
	closeFn func() error
}

func (f *fakeRunner) Run(ctx context.Context) (app.Result, error) {
	f.runs++
	f.runCtx = ctx
	return f.result, f.runErr
}

func (f *fakeRunner) Close(context.Context) error {
	f.closes++
	if f.closeFn != nil {
		return f.closeFn()
	}
	return nil
}

// stubFactories swaps the app and logger factories for the test's lifetime
// and returns a pointer to the config the app was built with.
func stubFactories(t *testing.T, runner *fakeRunner) *config.Config {
	t.Helper()
	origApp, origLogger := newApp, newLogger
	t.Cleanup(func() { newApp, newLogger = origApp, origLogger })

	var got config.Config
	newLogger = func(bool) (*zap.Logger, error) { return zap.NewNop(), nil }
	newApp = func(_ context.Context, cfg config.Config, _ *zap.Logger) (Runner, error) {
		got = cfg
		return runner, nil
	}
	return &got
}

func TestRootBindsFlagsIntoConfig(t *testing.T) {
	runner := &fakeRunner{}
	got := stubFactories(t, runner)
	dest := t.TempDir()

	err := execute(context.Background(), config.New(), []string{
		"--start_page", "3",
		"--end_page", "5",
		"--dest_folder", dest,
		"--skip_imgs",
		"--json_path", "meta",
	}, &bytes.Buffer{})
	require.NoError(t, err)

	assert.Equal(t, 1, runner.runs)
	assert.Equal(t, 1, runner.closes)
	assert.Equal(t, config.CrawlConfig{
		StartPage:  3,
		EndPage:    5,
		DestFolder: dest,
		SkipImages: true,
		JSONPath:   "meta",
	}, got.Crawl)
	assert.False(t, got.Server.Enabled)
}

func TestCrawlSubcommandUsesDefaults(t *testing.T) {
	runner := &fakeRunner{}
	got := stubFactories(t, runner)

	err := execute(context.Background(), config.New(), []string{"crawl"}, &bytes.Buffer{})
	require.NoError(t, err)

	assert.Equal(t, 1, runner.runs)
	assert.Equal(t, 1, got.Crawl.StartPage)
	assert.Equal(t, 702, got.Crawl.EndPage)
	assert.Equal(t, ".", got.Crawl.DestFolder)
	assert.Equal(t, crawler.DefaultCatalogURL, got.Site.CatalogURL)
}

func TestStatusPortEnablesServer(t *testing.T) {
	runner := &fakeRunner{}
	got := stubFactories(t, runner)

	err := execute(context.Background(), config.New(), []string{"crawl", "--status_port", "9191"}, &bytes.Buffer{})
	require.NoError(t, err)

	assert.True(t, got.Server.Enabled)
	assert.Equal(t, 9191, got.Server.Port)
}

func TestInvalidRangeFailsBeforeBuildingApp(t *testing.T) {
	runner := &fakeRunner{}
	stubFactories(t, runner)

	err := execute(context.Background(), config.New(), []string{"--start_page", "5", "--end_page", "5"}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "crawl.end_page")
	assert.Zero(t, runner.runs)
	assert.Zero(t, runner.closes)
}

func TestRunFailureStillClosesApp(t *testing.T) {
	runErr := errors.New("boom")
	runner := &fakeRunner{runErr: runErr}
	stubFactories(t, runner)

	err := execute(context.Background(), config.New(), []string{"crawl"}, &bytes.Buffer{})
	require.ErrorIs(t, err, runErr)
	assert.Equal(t, 1, runner.closes)
}

func TestCloseFailureIsReported(t *testing.T) {
	closeErr := errors.New("pool busy")
	runner := &fakeRunner{closeFn: func() error { return closeErr }}
	stubFactories(t, runner)

	err := execute(context.Background(), config.New(), nil, &bytes.Buffer{})
	require.ErrorIs(t, err, closeErr)
}

func TestInterruptedRunReturnsCanceled(t *testing.T) {
	runner := &fakeRunner{runErr: context.Canceled}
	stubFactories(t, runner)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := execute(ctx, config.New(), []string{"crawl"}, &bytes.Buffer{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, runner.closes)
	require.NotNil(t, runner.runCtx)
	assert.ErrorIs(t, runner.runCtx.Err(), context.Canceled)
}

func TestAppFactoryFailureIsWrapped(t *testing.T) {
	stubFactories(t, &fakeRunner{})
	newApp = func(context.Context, config.Config, *zap.Logger) (Runner, error) {
		return nil, errors.New("mkdir denied")
	}

	err := execute(context.Background(), config.New(), []string{"crawl"}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "initialize application: mkdir denied")
}

func TestExplicitEnvFileMustExist(t *testing.T) {
	runner := &fakeRunner{}
	stubFactories(t, runner)

	err := execute(context.Background(), config.New(), []string{"--env_file", t.TempDir() + "/missing.env"}, &bytes.Buffer{})
	require.ErrorContains(t, err, "load env file")
	assert.Zero(t, runner.runs)
}
