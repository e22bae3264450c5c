package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hupe1980/pagecache"
	pcprom "github.com/hupe1980/pagecache/metrics/prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli"
)

type cmdHandle func(ctx *cli.Context, c *pagecache.Cache, path string) error

// withCache loads the config, builds the cache and runs fn against the
// resource named by the first argument. The cache is shut down afterwards.
func withCache(fn cmdHandle) func(*cli.Context) error {
	return func(ctx *cli.Context) error {
		path := ctx.Args().First()
		if path == "" {
			return fmt.Errorf("%s: missing <path>", ctx.Command.Name)
		}

		cfg, err := configFromContext(ctx)
		if err != nil {
			return err
		}

		create := ctx.Command.Name == "gen" || ctx.Int("gen-blocks") > 0
		c, stop, err := newCache(context.Background(), cfg, create)
		if err != nil {
			return err
		}
		defer stop()

		return errors.Join(fn(ctx, c, path), c.Shutdown(context.Background()))
	}
}

func configFromContext(ctx *cli.Context) (Config, error) {
	cfg, err := LoadConfig(ctx.GlobalString("config"))
	if err != nil {
		return cfg, err
	}

	if ctx.GlobalIsSet("device") {
		cfg.Device.Kind = ctx.GlobalString("device")
	}
	if ctx.GlobalIsSet("block-size") {
		cfg.BlockSize = ctx.GlobalInt("block-size")
	}
	if ctx.GlobalIsSet("max-pages") {
		cfg.MaxPages = ctx.GlobalInt("max-pages")
	}
	if ctx.GlobalIsSet("log-level") {
		cfg.LogLevel = ctx.GlobalString("log-level")
	}
	if ctx.GlobalIsSet("metrics-addr") {
		cfg.MetricsAddr = ctx.GlobalString("metrics-addr")
	}
	return cfg, cfg.Validate()
}

func newCache(ctx context.Context, cfg Config, create bool) (*pagecache.Cache, func(), error) {
	dev, err := buildDevice(ctx, cfg, create)
	if err != nil {
		return nil, nil, err
	}

	// Validate has already vetted these.
	limit, _ := cfg.memoryLimit()
	rate, _ := cfg.writeBackRate()
	level, _ := cfg.logLevel()

	opts := []pagecache.Option{
		pagecache.WithDevice(dev),
		pagecache.WithLogLevel(level),
		pagecache.WithMemoryLimit(limit),
		pagecache.WithWriteBackRate(rate),
	}

	stop := func() {}
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		opts = append(opts, pagecache.WithMetricsCollector(pcprom.NewCollector(reg, "pagecache")))

		srv, err := serveMetrics(cfg.MetricsAddr, reg)
		if err != nil {
			return nil, nil, err
		}
		stop = func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}
	}

	c, err := pagecache.New(cfg.BlockSize, cfg.MaxPages, opts...)
	if err != nil {
		stop()
		return nil, nil, err
	}
	return c, stop, nil
}

func serveMetrics(addr string, reg *prometheus.Registry) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	return srv, nil
}

func handleGen(ctx *cli.Context, c *pagecache.Cache, path string) error {
	n, err := generate(context.Background(), c, path, ctx.Int("blocks"))
	if err != nil {
		return err
	}
	fmt.Fprintf(ctx.App.Writer, "wrote %s to %s\n", humanize.IBytes(uint64(n)), path)
	return nil
}

// generate writes blocks whose bytes identify their block number.
func generate(ctx context.Context, c *pagecache.Cache, path string, blocks int) (int64, error) {
	if blocks <= 0 {
		return 0, fmt.Errorf("blocks must be positive, got %d", blocks)
	}

	f, err := c.OpenFile(ctx, path)
	if err != nil {
		return 0, err
	}

	buf := make([]byte, c.BlockSize())
	var total int64
	for i := 0; i < blocks; i++ {
		for j := range buf {
			buf[j] = byte(i + j)
		}
		n, err := f.Write(buf)
		total += int64(n)
		if err != nil {
			return total, errors.Join(err, f.Close())
		}
	}
	return total, f.Close()
}

func handleDrain(ctx *cli.Context, c *pagecache.Cache, path string) error {
	bufSize, err := humanize.ParseBytes(ctx.String("buf-size"))
	if err != nil {
		return fmt.Errorf("buf-size: %w", err)
	}

	start := time.Now()
	n, err := c.Drain(context.Background(), path, int(bufSize))
	if err != nil {
		return err
	}
	fmt.Fprintf(ctx.App.Writer, "drained %s in %v (%s/s)\n",
		humanize.IBytes(uint64(n)), time.Since(start), throughput(n, time.Since(start)))
	return nil
}

func handleBench(ctx *cli.Context, c *pagecache.Cache, path string) error {
	bufSize, err := humanize.ParseBytes(ctx.String("buf-size"))
	if err != nil {
		return fmt.Errorf("buf-size: %w", err)
	}

	repeat := ctx.Int("repeat")
	if repeat <= 0 {
		return fmt.Errorf("repeat must be positive, got %d", repeat)
	}

	if blocks := ctx.Int("gen-blocks"); blocks > 0 {
		if _, err := generate(context.Background(), c, path, blocks); err != nil {
			return err
		}
	}

	for run := 1; run <= repeat; run++ {
		start := time.Now()
		n, err := c.Drain(context.Background(), path, int(bufSize))
		took := time.Since(start)
		if err != nil {
			return fmt.Errorf("run %d: %w", run, err)
		}
		fmt.Fprintf(ctx.App.Writer, "run %d: %s in %v (%s/s)\n",
			run, humanize.IBytes(uint64(n)), took, throughput(n, took))
	}

	st := c.Stats()
	fmt.Fprintf(ctx.App.Writer, "hits=%d misses=%d evictions=%d write-backs=%d\n",
		st.Hits, st.Misses, st.Evictions, st.WriteBacks)
	return nil
}

func throughput(n int64, d time.Duration) string {
	if d <= 0 {
		return humanize.IBytes(uint64(n))
	}
	return humanize.IBytes(uint64(float64(n) / d.Seconds()))
}
