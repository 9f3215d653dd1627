// Copyright 2026 RetailNext, Inc.
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

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigFile = "/etc/binlogbackup/config.yaml"
	DefaultPartSize   = 64 * 1024 * 1024
	MinPartSize       = 5 * 1024 * 1024
)

type Config struct {
	Hostname string `yaml:"hostname"`

	BinlogDirectory string `yaml:"binlog_directory"`
	BinlogBasename  string `yaml:"binlog_basename"`

	StateFile     string `yaml:"state_file"`
	StateMaxBytes int64  `yaml:"state_max_bytes"`
	LockFile      string `yaml:"lock_file"`
	HistoryFile   string `yaml:"history_file"`

	MariaDB MariaDBConfig `yaml:"mariadb"`
	Bucket  BucketConfig  `yaml:"bucket"`
	Report  ReportConfig  `yaml:"report"`
	Mail    MailConfig    `yaml:"mail"`

	Syslog bool `yaml:"syslog"`

	SyncEvery    time.Duration `yaml:"sync_every"`
	CompactEvery time.Duration `yaml:"compact_every"`
}

type MariaDBConfig struct {
	Client       string `yaml:"client"`
	DefaultsFile string `yaml:"defaults_file"`

	// RotateAfter of zero disables proactive rotation.
	RotateAfter  time.Duration `yaml:"rotate_after"`
	RotateSettle time.Duration `yaml:"rotate_settle"`
}

type BucketConfig struct {
	Name         string `yaml:"name"`
	Region       string `yaml:"region"`
	KeyPrefix    string `yaml:"key_prefix"`
	StorageClass string `yaml:"storage_class"`
	KeyDaily     bool   `yaml:"key_daily"`
	PartSize     int64  `yaml:"part_size"`
}

type ReportConfig struct {
	SummaryHour        int     `yaml:"summary_hour"`
	WeeklyDay          Weekday `yaml:"weekly_day"`
	ExpectedPerRun     int     `yaml:"expected_per_run"`
	HighVolumeMultiple int     `yaml:"high_volume_multiple"`
	FailureThreshold   int     `yaml:"failure_threshold"`
}

type MailConfig struct {
	Host          string   `yaml:"host"`
	Port          int      `yaml:"port"`
	Username      string   `yaml:"username"`
	Password      string   `yaml:"password"`
	From          string   `yaml:"from"`
	To            []string `yaml:"to"`
	SubjectPrefix string   `yaml:"subject_prefix"`
}

func Default() Config {
	return Config{
		Hostname:        shortHostname(),
		BinlogDirectory: "/var/lib/mysql",
		BinlogBasename:  "mysql-bin",
		StateFile:       "/var/lib/binlogbackup/uploaded.list",
		StateMaxBytes:   10 * 1024 * 1024,
		LockFile:        "/run/lock/binlogbackup.lock",
		HistoryFile:     "/var/lib/binlogbackup/history.db",
		MariaDB: MariaDBConfig{
			Client:       "/usr/bin/mariadb",
			RotateAfter:  time.Hour,
			RotateSettle: 2 * time.Second,
		},
		Bucket: BucketConfig{
			KeyPrefix:    "/",
			StorageClass: "STANDARD_IA",
			PartSize:     DefaultPartSize,
		},
		Report: ReportConfig{
			SummaryHour:        8,
			WeeklyDay:          Weekday(time.Monday),
			ExpectedPerRun:     2,
			HighVolumeMultiple: 5,
			FailureThreshold:   3,
		},
		Mail: MailConfig{
			Port:          25,
			SubjectPrefix: "[binlog-backup]",
		},
		SyncEvery:    15 * time.Minute,
		CompactEvery: 7 * 24 * time.Hour,
	}
}

// Load returns the defaults overlaid with the YAML file at path.
// A missing file is only an error when required is set.
func Load(path string, required bool) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var problems []string
	if c.Hostname == "" {
		problems = append(problems, "hostname is empty")
	}
	if c.BinlogDirectory == "" {
		problems = append(problems, "binlog_directory is empty")
	}
	if c.BinlogBasename == "" || strings.ContainsRune(c.BinlogBasename, '/') {
		problems = append(problems, "binlog_basename must be a bare file name prefix")
	}
	if c.StateFile == "" {
		problems = append(problems, "state_file is empty")
	}
	if c.LockFile == "" {
		problems = append(problems, "lock_file is empty")
	}
	if c.HistoryFile == "" {
		problems = append(problems, "history_file is empty")
	}
	if c.Bucket.Name == "" {
		problems = append(problems, "bucket.name is empty")
	}
	if c.Bucket.Region == "" {
		problems = append(problems, "bucket.region is empty")
	}
	if c.Bucket.PartSize < MinPartSize {
		problems = append(problems, fmt.Sprintf("bucket.part_size must be at least %d", MinPartSize))
	}
	if c.Report.SummaryHour < 0 || c.Report.SummaryHour > 23 {
		problems = append(problems, "report.summary_hour must be between 0 and 23")
	}
	if c.Report.ExpectedPerRun < 1 {
		problems = append(problems, "report.expected_per_run must be positive")
	}
	if c.Report.HighVolumeMultiple < 1 {
		problems = append(problems, "report.high_volume_multiple must be positive")
	}
	if c.Report.FailureThreshold < 1 {
		problems = append(problems, "report.failure_threshold must be positive")
	}
	if c.MariaDB.RotateAfter < 0 {
		problems = append(problems, "mariadb.rotate_after must not be negative")
	}
	if c.Mail.Host != "" && (c.Mail.From == "" || len(c.Mail.To) == 0) {
		problems = append(problems, "mail.from and mail.to are required when mail.host is set")
	}
	if c.SyncEvery <= 0 || c.CompactEvery <= 0 {
		problems = append(problems, "sync_every and compact_every must be positive")
	}
	if len(problems) > 0 {
		return errors.New("invalid config: " + strings.Join(problems, "; "))
	}
	return nil
}

func shortHostname() string {
	name, err := os.Hostname()
	if err != nil {
		return ""
	}
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[:i]
	}
	return name
}
