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
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fluxcd/artifactory-mirror/config"
	"github.com/fluxcd/artifactory-mirror/logger"
)

var rootCmd = &cobra.Command{
	Use:   "artifactory-mirror",
	Short: "Download recent artifacts from Artifactory and expire old local copies",
	Long: `artifactory-mirror searches an Artifactory repository path for recently
modified files, downloads those matching the configured masks into a local
directory, verifies their SHA256 checksums, and deletes local files older
than the configured retention.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runMirror,
}

var rootArgs struct {
	config config.Options
	logger logger.Options
}

func init() {
	rootArgs.config.BindFlags(rootCmd.Flags())
	rootArgs.logger.BindFlags(rootCmd.Flags())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setupSignalHandler returns a context that is cancelled on SIGINT or
// SIGTERM. A second signal terminates the process. The returned function
// releases the signal registration and must be called once the context is
// no longer needed.
func setupSignalHandler() (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case <-c:
			cancel()
		case <-done:
			return
		}
		select {
		case <-c:
			os.Exit(1)
		case <-done:
		}
	}()
	return ctx, func() {
		signal.Stop(c)
		close(done)
		cancel()
	}
}
