package model

import (
	"context"
	"time"
)

// VersionSource reports the latest published model.
type VersionSource interface {
	Latest(ctx context.Context) (VersionInfo, error)
}

// DefaultVersion is the version StaticSource publishes when none is set.
func DefaultVersion() VersionInfo {
	return VersionInfo{
		Version:   "1.0.0",
		ModelName: "model_1201.pt",
		Timestamp: "2023-12-01T12:00:00Z",
	}
}

// StaticSource answers with a fixed version after Delay, standing in for a
// version server.
type StaticSource struct {
	Info  VersionInfo
	Delay time.Duration
}

func (s StaticSource) Latest(ctx context.Context) (VersionInfo, error) {
	if err := sleep(ctx, s.Delay); err != nil {
		return VersionInfo{}, err
	}
	if s.Info == (VersionInfo{}) {
		return DefaultVersion(), nil
	}
	return s.Info, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
