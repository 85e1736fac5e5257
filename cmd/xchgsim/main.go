// Package main runs an in-process exchange cluster: every node hash-partitions its rows,
// scatters the partitions and then agrees with its peers on the partition totals.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/shxinding/blazingsql/cmn"
	"github.com/shxinding/blazingsql/cmn/cos"
	"github.com/shxinding/blazingsql/cmn/nlog"
)

var flags struct {
	config  string
	nodes   int
	parts   int
	rows    int
	timeout time.Duration
	help    bool
}

const helpMsg = `Examples:
	xchgsim -h                                   - show usage
	xchgsim -nodes=4 -parts=2 -rows=100000       - 4 nodes, 2 partitions per node, loopback
	xchgsim -config=/etc/xchg.yaml -nodes=3      - endpoint, compression and timeouts from config
`

func main() {
	fset := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fset.StringVar(&flags.config, "config", "", "YAML or JSON configuration (optional)")
	fset.IntVar(&flags.nodes, "nodes", 3, "number of in-process nodes")
	fset.IntVar(&flags.parts, "parts", 2, "partitions per node")
	fset.IntVar(&flags.rows, "rows", 10000, "rows generated by each node")
	fset.DurationVar(&flags.timeout, "timeout", time.Minute, "overall run timeout")
	fset.BoolVar(&flags.help, "h", false, "print usage and exit")
	nlog.InitFlags(fset)
	fset.Parse(os.Args[1:])

	if flags.help {
		fmt.Print(helpMsg)
		fset.PrintDefaults()
		os.Exit(0)
	}
	os.Exit(run())
}

func run() int {
	defer nlog.Flush()
	config := cmn.DefaultConfig()
	if flags.config != "" {
		var err error
		if config, err = cmn.LoadConfig(flags.config); err != nil {
			cos.ExitLogf("%v", err)
		}
	}
	if flags.nodes < 1 || flags.parts < 1 || flags.rows < 0 {
		cos.ExitLogf("invalid -nodes=%d -parts=%d -rows=%d", flags.nodes, flags.parts, flags.rows)
	}
	cmn.GCO.Put(config)
	if !config.Log.ToStderr {
		nlog.SetLogDirRole(config.Log.Dir, "xchgsim")
	}
	nlog.SetTitle("xchgsim " + cmn.VersionXchg)

	ctx, cancel := context.WithTimeout(context.Background(), flags.timeout)
	defer cancel()

	c, err := newCluster(config, flags.nodes)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer c.close()

	results, err := c.run(ctx, flags.parts, flags.rows)
	if err != nil {
		nlog.Errorln(err)
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	var rows int64
	for _, r := range results {
		fmt.Println(r)
		rows += r.rows
	}
	fmt.Printf("%d rows exchanged over %s (%d nodes, %d partitions each)\n",
		rows, config.Transport.Endpoint, flags.nodes, flags.parts)
	return 0
}
