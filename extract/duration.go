package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/e7canasta/relief-capture/internal/retry"
)

var errDurationUnknown = errors.New("duration not available")

// DurationResult is the resolved clip length.
type DurationResult struct {
	// Seconds is the clip length used for sampling
	Seconds float64
	// Assumed is true when every probe failed and FallbackDuration was used
	Assumed bool
	// Attempts is how many probes ran
	Attempts int
}

// ResolveDuration probes the clip duration up to DurationAttempts times,
// each probe bounded by DurationTimeout and followed by DurationRetryDelay.
//
// Freshly recorded WebM often carries no duration header, so exhausting the
// probes is not an error: the fallback is returned with Assumed set. The
// only errors are ctx being done and a probe that ignored cancellation
// (errCallAbandoned), after which the video must not be used.
func ResolveDuration(ctx context.Context, video Video, cfg Config) (DurationResult, error) {
	var res DurationResult

	err := retry.Do(ctx, retry.Fixed(cfg.DurationAttempts, cfg.DurationRetryDelay),
		func(ctx context.Context, attempt int) error {
			res.Attempts = attempt

			d, err := await(ctx, cfg.DurationTimeout, video.Duration)
			if errors.Is(err, errCallAbandoned) {
				return retry.Permanent(err)
			}
			if err != nil {
				return err
			}
			if !validDuration(d) {
				return fmt.Errorf("%w (got %v)", errDurationUnknown, d)
			}
			res.Seconds = d
			return nil
		})

	switch {
	case err == nil:
		slog.Debug("extract: clip duration resolved",
			"duration_s", res.Seconds,
			"attempts", res.Attempts,
		)
		return res, nil

	case errors.Is(err, errCallAbandoned):
		slog.Error("extract: duration probe did not return", "attempts", res.Attempts, "error", err)
		return DurationResult{}, err

	case ctx.Err() != nil:
		return DurationResult{}, ctx.Err()

	default:
		res.Seconds = cfg.FallbackDuration
		res.Assumed = true
		slog.Warn("extract: clip duration unavailable, assuming fallback",
			"fallback_s", cfg.FallbackDuration,
			"attempts", res.Attempts,
			"error", err,
		)
		return res, nil
	}
}

func validDuration(d float64) bool {
	return d > 0 && !math.IsNaN(d) && !math.IsInf(d, 0)
}
