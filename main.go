package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"

	"github.com/customeros/mailprobe/config"
	"github.com/customeros/mailprobe/server"
	"github.com/customeros/mailprobe/services"
)

func main() {
	app := &cli.App{
		Name:  "mailprobe",
		Usage: "email deliverability validation service",
		Commands: []*cli.Command{
			{
				Name:   "server",
				Usage:  "Start the HTTP API",
				Action: runServer,
			},
			{
				Name:  "worker",
				Usage: "Consume queued validation batches",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "workers",
						Aliases: []string{"w"},
						Usage:   "number of competing consumers in this process",
						EnvVars: []string{"WORKER_CONCURRENCY"},
					},
				},
				Action: runWorker,
			},
			{
				Name:  "breaker",
				Usage: "Inspect or reset the SMTP circuit breaker",
				Subcommands: []*cli.Command{
					{Name: "status", Action: breakerStatus},
					{Name: "reset", Action: breakerReset},
				},
			},
			{
				Name:  "cache",
				Usage: "Inspect or clear a cache namespace",
				Subcommands: []*cli.Command{
					{Name: "view", ArgsUsage: "<namespace>", Action: cacheView},
					{Name: "clear", ArgsUsage: "<namespace|all>", Action: cacheClear},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("%v", err)
	}
}

func newRuntime(ctx context.Context) (*server.Runtime, error) {
	cfg, err := config.InitConfig()
	if err != nil {
		return nil, fmt.Errorf("config initialization failed: %w", err)
	}
	if cfg == nil {
		return nil, fmt.Errorf("config is empty")
	}
	return server.NewRuntime(ctx, cfg)
}

func runServer(c *cli.Context) error {
	rt, err := newRuntime(c.Context)
	if err != nil {
		return err
	}
	defer rt.Close()

	srv, err := server.NewServer(rt)
	if err != nil {
		return fmt.Errorf("server setup failed: %w", err)
	}
	if err := srv.Run(); err != nil {
		return err
	}
	rt.Log.Info("Shutdown complete")
	return nil
}

func runWorker(c *cli.Context) error {
	rt, err := newRuntime(c.Context)
	if err != nil {
		return err
	}
	defer rt.Close()

	worker, err := server.NewWorker(rt, c.Int("workers"))
	if err != nil {
		return fmt.Errorf("worker setup failed: %w", err)
	}
	return worker.Run()
}

func withCoreServices(c *cli.Context, fn func(ctx context.Context, s *services.Services) error) error {
	rt, err := newRuntime(c.Context)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(c.Context, services.InitCoreServices(rt.Config, rt.Redis, rt.Repositories, rt.Log))
}

func printTable(header []string, rows [][]string) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.AppendBulk(rows)
	table.Render()
}

func breakerStatus(c *cli.Context) error {
	return withCoreServices(c, func(ctx context.Context, s *services.Services) error {
		metrics, err := s.CircuitBreaker.Metrics(ctx)
		if err != nil {
			return err
		}
		printTable([]string{"field", "value"}, [][]string{
			{"status", string(metrics.Status)},
			{"consecutive_smtp_timeouts", strconv.FormatInt(metrics.ConsecutiveSMTPTimeouts, 10)},
			{"total_timeouts", strconv.FormatInt(metrics.TotalTimeouts, 10)},
			{"total_dns_fallbacks", strconv.FormatInt(metrics.TotalDNSFallbacks, 10)},
			{"last_timeout", metrics.LastTimeout},
			{"timeout_threshold", strconv.FormatInt(metrics.TimeoutThreshold, 10)},
		})
		return nil
	})
}

func breakerReset(c *cli.Context) error {
	return withCoreServices(c, func(ctx context.Context, s *services.Services) error {
		if err := s.CircuitBreaker.Reset(ctx); err != nil {
			return err
		}
		fmt.Println("Circuit breaker reset")
		return nil
	})
}

func cacheView(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: mailprobe cache view <namespace>", 2)
	}
	return withCoreServices(c, func(ctx context.Context, s *services.Services) error {
		entries, err := s.CacheService.View(ctx, c.Args().First())
		if err != nil {
			return err
		}
		keys := make([]string, 0, len(entries))
		for key := range entries {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		rows := make([][]string, 0, len(keys))
		for _, key := range keys {
			rows = append(rows, []string{key, entries[key]})
		}
		printTable([]string{"key", "value"}, rows)
		fmt.Printf("%d entries\n", len(entries))
		return nil
	})
}

func cacheClear(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: mailprobe cache clear <namespace|all>", 2)
	}
	return withCoreServices(c, func(ctx context.Context, s *services.Services) error {
		cleared, err := s.CacheService.Clear(ctx, c.Args().First())
		if err != nil {
			return err
		}
		fmt.Printf("Successfully cleared %d cache entries\n", cleared)
		return nil
	})
}
