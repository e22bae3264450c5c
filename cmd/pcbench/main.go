// Command pcbench generates, drains and benchmarks resources through a page
// cache.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "pcbench: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "pcbench"
	app.Usage = "exercise a block-granular page cache"
	app.Version = "0.1.0"

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "config, c",
			Usage:  "Path to a YAML config file",
			EnvVar: "PCBENCH_CONFIG",
		},
		cli.StringFlag{
			Name:  "device, d",
			Usage: "Block device: local, memory, s3 or minio",
		},
		cli.IntFlag{
			Name:  "block-size",
			Usage: "Page size in bytes",
		},
		cli.IntFlag{
			Name:  "max-pages",
			Usage: "Maximum resident pages",
		},
		cli.StringFlag{
			Name:  "log-level",
			Usage: "debug, info, warn or error",
		},
		cli.StringFlag{
			Name:  "metrics-addr",
			Usage: "Serve Prometheus metrics on this address",
		},
	}

	bufSizeFlag := cli.StringFlag{
		Name:  "buf-size, b",
		Value: "4KiB",
		Usage: "Read request size",
	}

	app.Commands = []cli.Command{
		{
			Name:      "gen",
			Usage:     "Create a resource of N blocks with a recognizable pattern",
			ArgsUsage: "<path>",
			Action:    withCache(handleGen),
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:  "blocks, n",
					Value: 1024,
					Usage: "Number of blocks to write",
				},
			},
		},
		{
			Name:      "drain",
			Usage:     "Read a resource sequentially to the end",
			ArgsUsage: "<path>",
			Action:    withCache(handleDrain),
			Flags:     []cli.Flag{bufSizeFlag},
		},
		{
			Name:      "bench",
			Usage:     "Drain a resource repeatedly and report per-run throughput",
			ArgsUsage: "<path>",
			Action:    withCache(handleBench),
			Flags: []cli.Flag{
				bufSizeFlag,
				cli.IntFlag{
					Name:  "repeat, r",
					Value: 3,
					Usage: "Number of drain runs",
				},
				cli.IntFlag{
					Name:  "gen-blocks",
					Usage: "Generate the resource with this many blocks first",
				},
			},
		},
	}

	return app
}
