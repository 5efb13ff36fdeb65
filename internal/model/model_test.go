package model

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type progressLog struct {
	mu  sync.Mutex
	pct []int
}

func (p *progressLog) add(v int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pct = append(p.pct, v)
}

func (p *progressLog) values() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.pct...)
}

func newTestManager(t *testing.T, opts Options) *Manager {
	t.Helper()
	if opts.Dir == "" {
		opts.Dir = filepath.Join(t.TempDir(), "models")
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return NewManager(opts)
}

type downloaderFunc func(ctx context.Context, info VersionInfo, progress func(int)) error

func (f downloaderFunc) Download(ctx context.Context, info VersionInfo, progress func(int)) error {
	return f(ctx, info, progress)
}

type sourceFunc func(ctx context.Context) (VersionInfo, error)

func (f sourceFunc) Latest(ctx context.Context) (VersionInfo, error) { return f(ctx) }

func TestReadVersion(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		want    VersionInfo
		wantErr string
	}{
		{
			name:    "valid",
			content: `{"version":"1.0.0","model_name":"model_1201.pt","timestamp":"2023-12-01T12:00:00Z"}`,
			want:    DefaultVersion(),
		},
		{
			name:    "missing fields",
			content: `{"version":"1.0.0"}`,
			wantErr: "model_name, timestamp",
		},
		{
			name:    "malformed",
			content: `{"version":`,
			wantErr: "parse version file",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0600))

			got, err := ReadVersion(path)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadVersion_Missing(t *testing.T) {
	_, err := ReadVersion(filepath.Join(t.TempDir(), VersionFile))
	assert.ErrorIs(t, err, ErrNoLocalVersion)
}

func TestWriteVersion_RoundTripAndValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", VersionFile)

	require.NoError(t, WriteVersion(path, DefaultVersion()))
	got, err := ReadVersion(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultVersion(), got)

	err = WriteVersion(path, VersionInfo{Version: "2.0.0"})
	assert.Error(t, err)

	// The valid file survives a rejected write.
	got, err = ReadVersion(path)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", got.Version)
}

func TestStaticSource(t *testing.T) {
	got, err := StaticSource{}.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultVersion(), got)

	custom := VersionInfo{Version: "2.0.0", ModelName: "m.pt", Timestamp: "t"}
	got, err = StaticSource{Info: custom}.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, custom, got)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = StaticSource{Delay: time.Hour}.Latest(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSimulatedDownloader_Progress(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "models")
	var p progressLog

	err := SimulatedDownloader{Dir: dir}.Download(context.Background(), DefaultVersion(), p.add)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100}, p.values())

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestSimulatedDownloader_Cancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var p progressLog
	d := SimulatedDownloader{StepDelay: 20 * time.Millisecond}

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	err := d.Download(ctx, DefaultVersion(), p.add)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, len(p.values()), 11)
}

func TestManager_Check(t *testing.T) {
	m := newTestManager(t, Options{})

	res, err := m.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, res.HasLocal)
	assert.True(t, res.NeedsUpdate)
	assert.Equal(t, DefaultVersion(), res.Latest)

	require.NoError(t, m.SaveVersion(DefaultVersion()))
	res, err = m.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, res.HasLocal)
	assert.False(t, res.NeedsUpdate)

	require.NoError(t, m.SaveVersion(VersionInfo{Version: "0.9.0", ModelName: "old.pt", Timestamp: "t"}))
	res, err = m.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, res.NeedsUpdate)
	assert.Equal(t, "0.9.0", res.Local.Version)
}

func TestManager_CheckCorruptVersionNeedsUpdate(t *testing.T) {
	m := newTestManager(t, Options{})
	require.NoError(t, os.MkdirAll(m.Dir(), 0700))
	require.NoError(t, os.WriteFile(m.VersionPath(), []byte("garbage"), 0600))

	res, err := m.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, res.HasLocal)
	assert.True(t, res.NeedsUpdate)
}

func TestManager_LoadDownloadsAndSaves(t *testing.T) {
	m := newTestManager(t, Options{})
	var p progressLog

	require.NoError(t, m.Load(context.Background(), p.add))
	values := p.values()
	require.NotEmpty(t, values)
	assert.Equal(t, 0, values[0])
	assert.Equal(t, 100, values[len(values)-1])

	local, err := m.LocalVersion()
	require.NoError(t, err)
	assert.Equal(t, DefaultVersion(), local)
	assert.Equal(t, filepath.Join(m.Dir(), "model_1201.pt"), m.ModelPath())
}

func TestManager_LoadUpToDateReports100(t *testing.T) {
	downloaded := false
	m := newTestManager(t, Options{
		Downloader: downloaderFunc(func(context.Context, VersionInfo, func(int)) error {
			downloaded = true
			return nil
		}),
	})
	require.NoError(t, m.SaveVersion(DefaultVersion()))

	var p progressLog
	require.NoError(t, m.Load(context.Background(), p.add))
	assert.Equal(t, []int{100}, p.values())
	assert.False(t, downloaded)
}

func TestManager_LoadFailureReportsMinusOne(t *testing.T) {
	boom := errors.New("boom")

	t.Run("download", func(t *testing.T) {
		m := newTestManager(t, Options{
			Downloader: downloaderFunc(func(_ context.Context, _ VersionInfo, progress func(int)) error {
				progress(10)
				return boom
			}),
		})
		var p progressLog
		err := m.Load(context.Background(), p.add)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, []int{10, ProgressFailed}, p.values())
		assert.Empty(t, m.ModelPath())
	})

	t.Run("source", func(t *testing.T) {
		m := newTestManager(t, Options{
			Source: sourceFunc(func(context.Context) (VersionInfo, error) { return VersionInfo{}, boom }),
		})
		var p progressLog
		err := m.Load(context.Background(), p.add)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, []int{ProgressFailed}, p.values())
	})

	t.Run("invalid latest", func(t *testing.T) {
		m := newTestManager(t, Options{
			Source: StaticSource{Info: VersionInfo{Version: "2.0.0"}},
		})
		var p progressLog
		err := m.Load(context.Background(), p.add)
		assert.ErrorContains(t, err, "save model version")
		values := p.values()
		assert.Equal(t, ProgressFailed, values[len(values)-1])
	})
}

func TestManager_LoadNilProgress(t *testing.T) {
	m := newTestManager(t, Options{})
	assert.NoError(t, m.Load(context.Background(), nil))
}
