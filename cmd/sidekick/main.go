// Copyright 2025 Tom Barlow
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
	"os"
	"os/signal"
	"syscall"

	"github.com/tombee/sidekick/internal/cli"
	configcmd "github.com/tombee/sidekick/internal/commands/config"
	"github.com/tombee/sidekick/internal/commands/service"
	versioncmd "github.com/tombee/sidekick/internal/commands/version"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	// Set version information from build-time ldflags
	cli.SetVersion(version, commit, buildDate)

	rootCmd := cli.NewRootCommand()

	cli.AddCommands(rootCmd, cli.GroupService,
		service.NewStatusCommand(),
		service.NewStartCommand(),
		service.NewStopCommand(),
		service.NewRestartCommand(),
		service.NewEnsureCommand(),
		service.NewLogsCommand(),
		service.NewWatchCommand(),
	)

	cli.AddCommands(rootCmd, cli.GroupSetup,
		configcmd.NewConfigCommand(),
		versioncmd.NewVersionCommand(),
	)

	// Custom help command with JSON support
	rootCmd.SetHelpCommand(cli.NewHelpCommand(rootCmd))

	// Interrupts cancel the running command; start and watch stop waiting.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, err := rootCmd.ExecuteContextC(ctx)
	if err != nil {
		stop()
		cli.HandleExitError(cmd, err)
	}
}
