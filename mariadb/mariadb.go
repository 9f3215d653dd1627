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

package mariadb

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

var ErrBinlogDisabled = errors.New("binary logging is not enabled")

// Controller is the part of the database server the backup depends on.
type Controller interface {
	// CurrentSegment returns the name of the binary log being written.
	CurrentSegment(ctx context.Context) (string, error)
	// Rotate closes the current binary log and opens a new one.
	Rotate(ctx context.Context) error
}

// Client drives the server through the mariadb command line client.
type Client struct {
	Tool         string
	DefaultsFile string
}

func (c *Client) command(ctx context.Context, statement string) *exec.Cmd {
	var args []string
	if c.DefaultsFile != "" {
		// Must be the first argument.
		args = append(args, "--defaults-extra-file="+c.DefaultsFile)
	}
	args = append(args, "--batch", "--skip-column-names", "-e", statement)
	return exec.CommandContext(ctx, c.Tool, args...)
}

func (c *Client) CurrentSegment(ctx context.Context) (string, error) {
	lgr := zap.S()
	cmd := c.command(ctx, "SHOW MASTER STATUS")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		lgr.Errorw("show_master_status_fail", "err", err, "output", stderr.String())
		return "", err
	}
	name, err := ParseMasterStatus(output)
	if err != nil {
		lgr.Errorw("show_master_status_parse_fail", "err", err, "output", string(output))
		return "", err
	}
	return name, nil
}

func (c *Client) Rotate(ctx context.Context) error {
	lgr := zap.S()
	cmd := c.command(ctx, "FLUSH BINARY LOGS")
	output, err := cmd.CombinedOutput()
	if err != nil {
		lgr.Errorw("flush_binary_logs_fail", "err", err, "output", string(output))
		return err
	}
	lgr.Infow("flushed_binary_logs")
	return nil
}

// ParseMasterStatus extracts the file name from batch-mode SHOW MASTER STATUS
// output: tab separated File, Position, Binlog_Do_DB, Binlog_Ignore_DB.
func ParseMasterStatus(output []byte) (string, error) {
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		name := strings.TrimSpace(fields[0])
		if name == "" || strings.ContainsRune(name, '/') {
			return "", fmt.Errorf("unexpected master status line %q", line)
		}
		return name, nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", ErrBinlogDisabled
}
