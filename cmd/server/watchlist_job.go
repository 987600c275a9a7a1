package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/stockpanel/sentinel/internal/configsvc"
	"github.com/stockpanel/sentinel/internal/domain"
	"github.com/stockpanel/sentinel/internal/queue"
)

// watchlistJob submits one analysis task per configured watchlist
// symbol, run daily at SCHEDULE_TIME.
type watchlistJob struct {
	queue  *queue.Manager
	config func(ctx context.Context) configsvc.ConfigMap
	log    zerolog.Logger
}

func (j *watchlistJob) Name() string { return "watchlist_batch" }

func (j *watchlistJob) Run() {
	codes := splitKeys(j.config(context.Background())["STOCK_LIST"])
	if len(codes) == 0 {
		j.log.Info().Msg("watchlist is empty, nothing to submit")
		return
	}
	for _, code := range codes {
		if _, err := j.queue.Submit(code, "", domain.ReportFull, false); err != nil {
			j.log.Warn().Str("stock_code", code).Err(err).Msg("failed to submit watchlist task")
		}
	}
	j.log.Info().Int("count", len(codes)).Msg("watchlist batch submitted")
}

// cronSpecFromHHMM turns a "HH:MM" schedule into a 5-field cron spec
// (minute hour * * *).
func cronSpecFromHHMM(hhmm string) (string, error) {
	parts := strings.SplitN(strings.TrimSpace(hhmm), ":", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("expected HH:MM, got %q", hhmm)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("invalid hour in %q", hhmm)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid minute in %q", hhmm)
	}
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}
