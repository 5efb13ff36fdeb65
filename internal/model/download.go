package model

import (
	"context"
	"fmt"
	"os"
	"time"
)

// Downloader fetches a model version into the model dir, reporting
// progress as a percentage.
type Downloader interface {
	Download(ctx context.Context, info VersionInfo, progress func(int)) error
}

// SimulatedDownloader reports 0..100 in steps of 10, waiting StepDelay
// before each step. It fetches nothing.
type SimulatedDownloader struct {
	Dir       string
	StepDelay time.Duration
}

func (d SimulatedDownloader) Download(ctx context.Context, info VersionInfo, progress func(int)) error {
	if d.Dir != "" {
		if err := os.MkdirAll(d.Dir, 0700); err != nil {
			return fmt.Errorf("create model dir: %w", err)
		}
	}
	for pct := 0; pct <= 100; pct += 10 {
		if err := sleep(ctx, d.StepDelay); err != nil {
			return fmt.Errorf("download %s: %w", info.ModelName, err)
		}
		if progress != nil {
			progress(pct)
		}
	}
	return nil
}
