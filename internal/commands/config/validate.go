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

package config

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tombee/sidekick/internal/commands/shared"
	"github.com/tombee/sidekick/internal/config"
	"github.com/tombee/sidekick/internal/lifecycle"
	sidekickerrors "github.com/tombee/sidekick/pkg/errors"
)

// ValidationResult represents the result of config validation.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Path     string   `json:"path,omitempty"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// NewValidateCommand creates the 'config validate' subcommand.
func NewValidateCommand() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		Long: `Validate the effective configuration.

Checks performed:
  - YAML syntax and value ranges
  - The launch command can be parsed
  - The source directory contains the entry artifact
  - The endpoint is local, so sidekick can start the service

With --strict, warnings are treated as errors.`,
		Example: `  # Validate configuration
  sidekick config validate

  # Validate with warnings as errors
  sidekick config validate --strict

  # Get validation result as JSON
  sidekick config validate --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.ResolvePath(shared.GetConfigPath())
			result := validatePath(path)
			return outputValidationResult(cmd.OutOrStdout(), result, strict)
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Treat warnings as errors")

	return cmd
}

// validatePath loads the configuration at path and checks it.
func validatePath(path string) ValidationResult {
	cfg, err := config.Load(path)
	if err != nil {
		msg := err.Error()
		var cfgErr *sidekickerrors.ConfigError
		if errors.As(err, &cfgErr) && cfgErr.Cause != nil {
			msg = cfgErr.Cause.Error()
		}
		return ValidationResult{Valid: false, Path: path, Errors: []string{msg}}
	}

	result := validateConfig(cfg)
	result.Path = path
	return result
}

// validateConfig checks what Load cannot: whether the service could actually
// be started with this configuration.
func validateConfig(cfg *config.Config) ValidationResult {
	var errs []string
	var warnings []string

	lc := cfg.Lifecycle()

	if _, err := lifecycle.BuildArgv(lc.LaunchCommand); err != nil {
		errs = append(errs, err.Error())
	}

	if err := lifecycle.ValidateLoopback(cfg.Service.Endpoint); err != nil {
		warnings = append(warnings, fmt.Sprintf("Endpoint %s is not local; sidekick can check it but never start it", cfg.Service.Endpoint))
	}

	switch {
	case !lc.Enabled:
		if lc.AutoStart {
			warnings = append(warnings, "management.auto_start has no effect while management.enabled is false")
		}
	case lc.SourceDir == "":
		warnings = append(warnings, "management.source_dir is not set; 'sidekick start' will fail until it is")
	default:
		if err := lifecycle.ValidateSource(lc); err != nil {
			warnings = append(warnings, err.Error())
		}
	}

	return ValidationResult{
		Valid:    len(errs) == 0,
		Errors:   errs,
		Warnings: warnings,
	}
}

// outputValidationResult prints the result and returns an error carrying
// the exit code when validation failed.
func outputValidationResult(w io.Writer, result ValidationResult, strict bool) error {
	if shared.GetJSON() {
		if err := shared.WriteJSON(w, result); err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
	} else if !shared.GetQuiet() {
		if result.Valid {
			fmt.Fprintln(w, shared.RenderOK("Configuration is valid"))
		} else {
			fmt.Fprintln(w, shared.RenderError("Configuration validation failed"))
		}
		fmt.Fprintln(w)

		if len(result.Errors) > 0 {
			fmt.Fprintln(w, shared.Header.Render("Errors:"))
			for _, err := range result.Errors {
				fmt.Fprintf(w, "  %s %s\n", shared.StatusError.Render(shared.SymbolError), err)
			}
			fmt.Fprintln(w)
		}

		if len(result.Warnings) > 0 {
			fmt.Fprintln(w, shared.Header.Render("Warnings:"))
			for _, warn := range result.Warnings {
				fmt.Fprintf(w, "  %s %s\n", shared.StatusWarn.Render(shared.SymbolWarn), warn)
			}
			fmt.Fprintln(w)
		}

		if result.Valid && len(result.Warnings) == 0 {
			fmt.Fprintln(w, "No issues found.")
		}
	}

	if !result.Valid {
		return &shared.ExitError{Code: shared.ExitConfig, Message: "configuration is invalid"}
	}

	if strict && len(result.Warnings) > 0 {
		return &shared.ExitError{Code: shared.ExitConfig, Message: "validation failed (strict mode: warnings treated as errors)"}
	}

	return nil
}
