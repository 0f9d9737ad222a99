package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"github.com/target/mmk-gatekeeper/config"
	"github.com/target/mmk-gatekeeper/internal/bootstrap"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
	// noConfig commands run without loading the environment.
	noConfig bool
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
	Stdin  io.Reader
	Stdout io.Writer
}

func main() {
	logger := bootstrap.InitLogger(slog.LevelInfo)

	if len(os.Args) < 2 {
		if err := printUsage(os.Stdout); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		if err := writef(os.Stderr, "unknown command %q\n\n", cmdName); err != nil {
			logger.Error("print unknown command message failed", "error", err)
		}
		if err := printUsage(os.Stderr); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	cmdCtx := &commandContext{
		Ctx:    context.Background(),
		Logger: logger,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
	}
	if !cmd.noConfig {
		cfg, err := bootstrap.ParseConfig()
		if err != nil {
			logger.ErrorContext(cmdCtx.Ctx, "load config", "error", err)
			os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
		}
		cmdCtx.Config = cfg
	}

	if runErr := cmd.run(cmdCtx, os.Args[2:]); runErr != nil {
		logger.ErrorContext(cmdCtx.Ctx, "command failed", "command", cmdName, "error", runErr)
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func commands() map[string]command {
	return map[string]command{
		"migrate": {
			name:        "migrate",
			description: "Run credential database migrations",
			run:         runMigrations,
		},
		"add-credential": {
			name:        "add-credential",
			description: "Create a password credential (password read from stdin)",
			run:         runAddCredential,
		},
		"set-password": {
			name:        "set-password",
			description: "Replace a credential's password and re-enable it",
			run:         runSetPassword,
		},
		"disable-credential": {
			name:        "disable-credential",
			description: "Disable a credential without deleting it",
			run:         runDisableCredential,
		},
		"list-credentials": {
			name:        "list-credentials",
			description: "List password credentials",
			run:         runListCredentials,
		},
		"revoke-session": {
			name:        "revoke-session",
			description: "Delete a session so its cached identity is forgotten",
			run:         runRevokeSession,
		},
		"hash-password": {
			name:        "hash-password",
			description: "Print a bcrypt hash for a password read from stdin",
			run:         runHashPassword,
			noConfig:    true,
		},
	}
}

func printUsage(w io.Writer) error {
	if err := writef(w, "Usage: gatekeeper-admin <command> [flags]\n\n"); err != nil {
		return err
	}
	if err := writef(w, "Available commands:\n"); err != nil {
		return err
	}
	cmds := commands()
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := writef(w, "  %-20s %s\n", name, cmds[name].description); err != nil {
			return err
		}
	}
	return nil
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}
