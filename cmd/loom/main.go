// MIT License
//
// Copyright (c) 2023-2026 Threadloom Authors
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Command loom hosts one runtime node. Service implementations register
// their factories via actor.RegisterFactory (typically from init functions
// of imported packages); the node config then names them in its services
// list.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/threadloom/loom/actor"
	"github.com/threadloom/loom/log"
)

func main() {
	var (
		configPath = flag.String("c", "config.json", "node config file (JSON array)")
		sid        = flag.Uint("sid", 1, "node id to select from the config")
		debug      = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	cfg, err := actor.LoadServerConfig(*configPath, uint16(*sid))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	level := log.InfoLevel
	if *debug {
		level = log.DebugLevel
	}
	logger := log.NewZap(level, os.Stdout)
	if cfg.Log != "" {
		path := actor.ExpandLogPath(cfg.Log, cfg.Sid)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintln(os.Stderr, "open log:", err)
			os.Exit(1)
		}
		defer f.Close()
		logger = log.NewZap(level, os.Stdout, f)
	}

	server := actor.NewServer(
		actor.WithConfig(cfg),
		actor.WithLogger(logger),
	)
	if err := server.Run(context.Background()); err != nil {
		logger.Errorf("node %s: %v", cfg.Name, err)
		os.Exit(1)
	}
}
