// Package main runs a single scheduled job outside the bot process, for
// cron-driven deployments and manual maintenance:
//
//	worker -job daily_reset
//	worker -list
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/seasons-hub/seasons-bot/config"
	"github.com/seasons-hub/seasons-bot/internal/app"
)

func main() {
	jobName := flag.String("job", "", "name of the job to run")
	list := flag.Bool("list", false, "list the registered jobs and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *jobName, *list); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, jobName string, list bool) error {
	if jobName == "" && !list {
		flag.Usage()
		return fmt.Errorf("-job is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	rt, err := app.Build(ctx, cfg, app.Options{})
	if err != nil {
		return err
	}
	defer rt.Close(context.Background())

	if list {
		for _, j := range rt.Scheduler.ListJobs() {
			fmt.Printf("%-26s %-8t %s\n", j.Name, j.Enabled, j.Schedule)
		}
		return nil
	}
	return rt.RunJob(ctx, jobName)
}
