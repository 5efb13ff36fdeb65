package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
)

// ProgressFailed is reported to a progress callback when loading fails.
const ProgressFailed = -1

type Manager struct {
	dir        string
	source     VersionSource
	downloader Downloader
	logger     *slog.Logger
}

type Options struct {
	Dir        string
	Source     VersionSource
	Downloader Downloader
	Logger     *slog.Logger
}

// NewManager fills unset options with the stub source and downloader.
func NewManager(opts Options) *Manager {
	if opts.Dir == "" {
		opts.Dir = "models"
	}
	if opts.Source == nil {
		opts.Source = StaticSource{}
	}
	if opts.Downloader == nil {
		opts.Downloader = SimulatedDownloader{Dir: opts.Dir}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Manager{
		dir:        opts.Dir,
		source:     opts.Source,
		downloader: opts.Downloader,
		logger:     opts.Logger,
	}
}

func (m *Manager) Dir() string { return m.dir }

// VersionPath returns {dir}/version.json.
func (m *Manager) VersionPath() string {
	return filepath.Join(m.dir, VersionFile)
}

// LocalVersion reads the installed version.
func (m *Manager) LocalVersion() (VersionInfo, error) {
	return ReadVersion(m.VersionPath())
}

// SaveVersion records info as installed.
func (m *Manager) SaveVersion(info VersionInfo) error {
	return WriteVersion(m.VersionPath(), info)
}

// ModelPath returns the installed model file path, or "" if none is
// installed.
func (m *Manager) ModelPath() string {
	local, err := m.LocalVersion()
	if err != nil {
		return ""
	}
	return filepath.Join(m.dir, local.ModelName)
}

// CheckResult is the outcome of comparing local and latest versions.
type CheckResult struct {
	Local       VersionInfo
	HasLocal    bool
	Latest      VersionInfo
	NeedsUpdate bool
}

// Check compares the installed version with the latest. A missing or
// unreadable version file means an update is needed.
func (m *Manager) Check(ctx context.Context) (CheckResult, error) {
	m.logger.Info("checking model version", "action", "check")

	var res CheckResult
	local, err := m.LocalVersion()
	switch {
	case err == nil:
		res.Local, res.HasLocal = local, true
	case errors.Is(err, ErrNoLocalVersion):
		m.logger.Info("no local model version", "path", m.VersionPath())
	default:
		m.logger.Warn("local model version unreadable", "path", m.VersionPath(), "error", err)
	}

	latest, err := m.source.Latest(ctx)
	if err != nil {
		return res, fmt.Errorf("latest model version: %w", err)
	}
	res.Latest = latest
	res.NeedsUpdate = !res.HasLocal || !local.Same(latest)
	return res, nil
}

// Load brings the installed model up to date. progress receives download
// percentages, 100 at once when already current, and ProgressFailed if
// anything fails.
func (m *Manager) Load(ctx context.Context, progress func(int)) error {
	report := func(pct int) {
		if progress != nil {
			progress(pct)
		}
	}

	err := m.load(ctx, report)
	if err != nil {
		m.logger.Error("model load failed", "action", "load", "error", err)
		report(ProgressFailed)
		return err
	}
	m.logger.Info("model ready", "action", "load", "path", m.ModelPath())
	return nil
}

func (m *Manager) load(ctx context.Context, report func(int)) error {
	res, err := m.Check(ctx)
	if err != nil {
		return err
	}
	if !res.NeedsUpdate {
		m.logger.Info("model up to date", "version", res.Local.Version)
		report(100)
		return nil
	}

	m.logger.Info("model update needed", "action", "download",
		"local", res.Local.Version, "latest", res.Latest.Version)
	if err := m.downloader.Download(ctx, res.Latest, func(pct int) {
		m.logger.Debug("download progress", "percent", pct)
		report(pct)
	}); err != nil {
		return err
	}
	if err := m.SaveVersion(res.Latest); err != nil {
		return fmt.Errorf("save model version: %w", err)
	}
	return nil
}
