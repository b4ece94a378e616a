/*
Copyright 2026 The Flux authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fluxcd/artifactory-mirror/artifactory"
	"github.com/fluxcd/artifactory-mirror/config"
	"github.com/fluxcd/artifactory-mirror/logger"
	"github.com/fluxcd/artifactory-mirror/metrics"
	"github.com/fluxcd/artifactory-mirror/mirror"
)

func runMirror(cmd *cobra.Command, args []string) error {
	ctx, stop := setupSignalHandler()
	defer stop()

	if err := rootArgs.config.Validate(); err != nil {
		return err
	}
	if err := rootArgs.logger.Validate(); err != nil {
		return err
	}

	cfg, err := config.Load(rootArgs.config.ConfigPath)
	if err != nil {
		return err
	}

	logOpts := rootArgs.logger
	logOpts.LogsDir = cfg.LogsDir
	log, closeLog, err := logger.NewLogger(logOpts)
	if err != nil {
		return err
	}
	defer closeLog()
	log.Info(strings.Repeat("=", 60))

	client, err := artifactory.NewClient(artifactory.Options{
		URL:     cfg.ArtifactoryURL,
		APIKey:  rootArgs.config.APIKey,
		Timeout: cfg.Timeout(),
		Retries: cfg.HTTPRetries,
		Logger:  log,
	})
	if err != nil {
		return err
	}

	m, err := mirror.New(cfg, client, client, log,
		mirror.WithDryRun(rootArgs.config.DryRun),
		mirror.WithRecorder(metrics.NewRecorder()))
	if err != nil {
		return err
	}

	report, err := m.Run(ctx)
	if err != nil {
		return err
	}
	if report.Failed() {
		return fmt.Errorf("%d of %d selected artifacts failed to download", len(report.Failures), report.Selected)
	}
	return nil
}
