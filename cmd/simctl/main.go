/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/carverauto/nodesim/cmd/simctl/app"
	"github.com/carverauto/nodesim/pkg/version"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "/etc/nodesim/simctl.json", "Path to simctl config file (.json or .yaml)")
	headless := flag.Bool("headless", false, "Run without the console, logging counters and alerts")
	assumeYes := flag.Bool("yes", false, "Confirm bulk actions without asking (headless only)")
	limit := flag.Int("limit", 0, "Maximum number of nodes to load from the catalog (0 for the default)")
	exportLog := flag.String("export-log", "nodesim-stream.log", "File the console writes the stream log to")
	backendLog := flag.String("backend-log", "", "Download the backend log dump to this file and exit")
	timestamp := flag.String("timestamp", "", "Run timestamp for -backend-log (default: current run)")
	history := flag.Bool("history", false, "List simulation runs and exit")
	vertical := flag.Int("vertical", 0, "Load only the nodes of this vertical id")
	verticals := flag.Bool("verticals", false, "List verticals with their parameters and exit")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.GetFullVersion())
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return app.Run(ctx, app.Options{
		ConfigPath:    *configPath,
		Headless:      *headless,
		AssumeYes:     *assumeYes,
		NodeLimit:     *limit,
		ExportLogPath: *exportLog,
		BackendLog:    *backendLog,
		Timestamp:     *timestamp,
		History:       *history,
		VerticalID:    *vertical,
		Verticals:     *verticals,
	})
}
