// Copyright 2019 RetailNext, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"log/syslog"
	"os"
	"os/signal"
	"runtime/pprof"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/retailnext/binlogbackup/backup"
	"github.com/retailnext/binlogbackup/config"
	"github.com/retailnext/binlogbackup/flock"
	"github.com/retailnext/binlogbackup/metrics"
	"github.com/retailnext/binlogbackup/periodic"
	"github.com/retailnext/binlogbackup/restore"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

const syslogTag = "binlogbackup"

func setupLogger(withSyslog bool) func() {
	var logger *zap.Logger
	var err error
	if term.IsTerminal(int(os.Stdin.Fd())) {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	var syslogWriter *syslog.Writer
	if withSyslog {
		syslogWriter, err = syslog.New(syslog.LOG_INFO|syslog.LOG_DAEMON, syslogTag)
		if err != nil {
			logger.Warn("syslog_unavailable", zap.Error(err))
		} else {
			syslogCore := zapcore.NewCore(
				zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
				zapcore.AddSync(syslogWriter),
				zap.InfoLevel,
			)
			logger = logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
				return zapcore.NewTee(core, syslogCore)
			}))
		}
	}
	zap.ReplaceGlobals(logger)

	return func() {
		_ = logger.Sync()
		if syslogWriter != nil {
			_ = syslogWriter.Close()
		}
	}
}

func setupInterruptContext() (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-c:
			zap.S().Infow("shutting_down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	onExit := func() {
		signal.Stop(c)
		cancel()
	}
	return ctx, onExit
}

func setupProfile() func() {
	if pprofFile == nil || *pprofFile == "" {
		return func() {
		}
	}
	f, err := os.Create(*pprofFile)
	if err != nil {
		panic(err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		panic(err)
	}
	return func() {
		pprof.StopCPUProfile()
		if err := f.Close(); err != nil {
			panic(err)
		}
	}
}

var (
	configSet  bool
	configFile = kingpin.Flag("config", "YAML configuration file. Only an explicitly given file must exist.").IsSetByUser(&configSet).Default(config.DefaultConfigFile).String()

	pprofFile = kingpin.Flag("pprof.cpu.file", "Enable cpu profiling to this file.").String()

	metricsListenAddress = kingpin.Flag("web.listen-address", "Address on which to expose metrics.").String()
	metricsPath          = kingpin.Flag("web.telemetry-path", "Path under which to expose metrics.").Default("/metrics").String()
	metricsTextfile      = kingpin.Flag("metrics.textfile", "Write metrics to this file for the node_exporter textfile collector on exit.").String()

	listCmd         = kingpin.Command("list", "")
	listSegmentsCmd = listCmd.Command("segments", "List uploaded segments for a host.")
	listSegmentsFor = listSegmentsCmd.Flag("for-host", "Host to list. Defaults to this host.").String()
)

func parseOptions() (string, config.Config) {
	kingpin.UsageTemplate(kingpin.CompactUsageTemplate)
	cmd := kingpin.Parse()

	cfg, err := config.Load(*configFile, configSet)
	if err != nil {
		kingpin.Fatalf("load config: %v", err)
	}
	backup.ApplyFlags(&cfg)
	if err := cfg.Validate(); err != nil {
		kingpin.Fatalf("%v", err)
	}
	return cmd, cfg
}

func main() {
	cmd, cfg := parseOptions()

	sync := setupLogger(cfg.Syslog)
	defer sync()
	lgr := zap.S()

	ctx, onExit := setupInterruptContext()
	defer onExit()

	stopProfile := setupProfile()
	defer stopProfile()

	metrics.SetupPrometheus(metricsListenAddress, metricsPath)

	// Fatalw exits without running deferred calls.
	fatal := func(event string, err error) {
		stopProfile()
		metrics.WriteTextfile(metricsTextfile)
		sync()
		lgr.Fatalw(event, "err", err)
	}
	check := func(event string, err error) {
		switch {
		case err == nil, errors.Is(err, context.Canceled), errors.Is(err, flock.ErrLocked):
		case backup.IsPrecondition(err):
			fatal("precondition_failed", err)
		default:
			fatal(event, err)
		}
	}

	switch cmd {
	case backup.SyncCmd.FullCommand():
		check("sync_error", backup.DoSync(ctx, cfg))
	case backup.CompactCmd.FullCommand():
		check("compact_error", backup.DoCompact(ctx, cfg))
	case backup.RunCmd.FullCommand():
		check("run_error", periodic.Main(ctx, cfg))
	case backup.StatusCmd.FullCommand():
		check("status_error", backup.DoStatus(cfg, *backup.StatusRuns))
	case restore.SegmentsCmd.FullCommand():
		check("restore_error", restore.RestoreSegments(ctx, cfg, restore.OptionsFromFlags(cfg)))
	case listSegmentsCmd.FullCommand():
		host := cfg.Hostname
		if *listSegmentsFor != "" {
			host = *listSegmentsFor
		}
		check("list_segments_error", backup.DoListSegments(ctx, cfg, host))
	default:
		lgr.Fatalw("unhandled_command", "cmd", cmd)
	}
	metrics.WriteTextfile(metricsTextfile)
}
