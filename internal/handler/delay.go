package handler

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

const defaultDelaySeconds = 1.0

// Delay waits for config.delay_seconds (default 1) or until the step deadline.
func Delay(ctx context.Context, req Request) (map[string]any, error) {
	seconds := defaultDelaySeconds
	if v, ok := req.ConfigFloat("delay_seconds"); ok {
		seconds = v
	} else if s := req.ConfigString("delay_seconds", ""); s != "" {
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("delay_seconds %q is not a number", s)
		}
		seconds = parsed
	}
	if seconds < 0 {
		return nil, fmt.Errorf("delay_seconds must be >= 0, got %v", seconds)
	}

	timer := time.NewTimer(time.Duration(seconds * float64(time.Second)))
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return map[string]any{"delayed_seconds": seconds}, nil
}
