package main

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/target/mmk-gatekeeper/internal/adapters/postgres"
	redisadapter "github.com/target/mmk-gatekeeper/internal/adapters/redis"
	"github.com/target/mmk-gatekeeper/internal/adapters/strategies/password"
	"github.com/target/mmk-gatekeeper/internal/bootstrap"
	domainauth "github.com/target/mmk-gatekeeper/internal/domain/auth"
)

type migrateOptions struct {
	Timeout time.Duration
}

type credentialOptions struct {
	Username  string
	Email     string
	FirstName string
	LastName  string
	Groups    []string
	Cost      int
}

type disableOptions struct {
	Username string
	Yes      bool
}

type listCredentialOptions struct {
	JSON bool
}

func runMigrations(cmdCtx *commandContext, args []string) error {
	opts, err := parseMigrateFlags(args)
	if err != nil {
		return err
	}
	return withDB(cmdCtx, opts.Timeout, func(ctx context.Context, db *sql.DB) error {
		cmdCtx.Logger.Info("running database migrations")
		if err := bootstrap.RunMigrations(ctx, db, cmdCtx.Logger); err != nil {
			return err
		}
		cmdCtx.Logger.Info("migrations completed successfully")
		return nil
	})
}

func runAddCredential(cmdCtx *commandContext, args []string) error {
	opts, err := parseCredentialFlags("add-credential", args, true)
	if err != nil {
		return err
	}
	hash, err := readAndHash(cmdCtx.Stdin, opts.Cost)
	if err != nil {
		return err
	}
	cred := domainauth.Credential{
		Username:     opts.Username,
		PasswordHash: hash,
		Email:        opts.Email,
		FirstName:    opts.FirstName,
		LastName:     opts.LastName,
		Groups:       opts.Groups,
	}
	return withCredentials(cmdCtx, func(ctx context.Context, repo *postgres.CredentialRepo) error {
		if err := repo.Create(ctx, cred); err != nil {
			return err
		}
		return writef(cmdCtx.Stdout, "created credential %q\n", cred.Username)
	})
}

func runSetPassword(cmdCtx *commandContext, args []string) error {
	opts, err := parseCredentialFlags("set-password", args, false)
	if err != nil {
		return err
	}
	hash, err := readAndHash(cmdCtx.Stdin, opts.Cost)
	if err != nil {
		return err
	}
	return withCredentials(cmdCtx, func(ctx context.Context, repo *postgres.CredentialRepo) error {
		if err := repo.SetPassword(ctx, opts.Username, hash); err != nil {
			return err
		}
		return writef(cmdCtx.Stdout, "password updated for %q\n", opts.Username)
	})
}

func runDisableCredential(cmdCtx *commandContext, args []string) error {
	opts, err := parseDisableFlags(args)
	if err != nil {
		return err
	}
	if !opts.Yes {
		ok, err := confirm(cmdCtx.Stdin, cmdCtx.Stdout, fmt.Sprintf("Disable credential %q?", opts.Username))
		if err != nil {
			return err
		}
		if !ok {
			return writef(cmdCtx.Stdout, "aborted\n")
		}
	}
	return withCredentials(cmdCtx, func(ctx context.Context, repo *postgres.CredentialRepo) error {
		if err := repo.Disable(ctx, opts.Username); err != nil {
			return err
		}
		return writef(cmdCtx.Stdout, "disabled credential %q\n", opts.Username)
	})
}

func runListCredentials(cmdCtx *commandContext, args []string) error {
	opts, err := parseListCredentialFlags(args)
	if err != nil {
		return err
	}
	return withCredentials(cmdCtx, func(ctx context.Context, repo *postgres.CredentialRepo) error {
		creds, err := repo.List(ctx)
		if err != nil {
			return err
		}
		return printCredentials(cmdCtx.Stdout, creds, opts.JSON)
	})
}

func runRevokeSession(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("revoke-session", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var id string
	fs.StringVar(&id, "id", "", "Session ID (the session cookie value)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if id = strings.TrimSpace(id); id == "" {
		return errors.New("--id is required")
	}
	return withSessions(cmdCtx, func(ctx context.Context, store *redisadapter.SessionStore) error {
		if err := store.Delete(ctx, id); err != nil {
			return err
		}
		return writef(cmdCtx.Stdout, "revoked session %s\n", id)
	})
}

func runHashPassword(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("hash-password", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	cost := fs.Int("cost", 0, "bcrypt cost (0 uses the library default)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	hash, err := readAndHash(cmdCtx.Stdin, *cost)
	if err != nil {
		return err
	}
	return writef(cmdCtx.Stdout, "%s\n", hash)
}

func parseMigrateFlags(args []string) (migrateOptions, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := migrateOptions{Timeout: defaultCommandTimeout}
	fs.DurationVar(&opts.Timeout, "timeout", defaultCommandTimeout,
		"Maximum duration to wait for migrations to complete")

	if err := fs.Parse(args); err != nil {
		return migrateOptions{}, err
	}
	if opts.Timeout <= 0 {
		return migrateOptions{}, errors.New("--timeout must be positive")
	}
	return opts, nil
}

func parseCredentialFlags(name string, args []string, withProfile bool) (credentialOptions, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts credentialOptions
	var groups string
	fs.StringVar(&opts.Username, "username", "", "Username (required)")
	fs.IntVar(&opts.Cost, "cost", 0, "bcrypt cost (0 uses the library default)")
	if withProfile {
		fs.StringVar(&opts.Email, "email", "", "Email address")
		fs.StringVar(&opts.FirstName, "first-name", "", "First name")
		fs.StringVar(&opts.LastName, "last-name", "", "Last name")
		fs.StringVar(&groups, "groups", "", "Comma-separated group list")
	}

	if err := fs.Parse(args); err != nil {
		return credentialOptions{}, err
	}
	opts.Username = strings.TrimSpace(opts.Username)
	if opts.Username == "" {
		return credentialOptions{}, errors.New("--username is required")
	}
	for _, g := range strings.Split(groups, ",") {
		if g = strings.TrimSpace(g); g != "" {
			opts.Groups = append(opts.Groups, g)
		}
	}
	return opts, nil
}

func parseDisableFlags(args []string) (disableOptions, error) {
	fs := flag.NewFlagSet("disable-credential", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts disableOptions
	fs.StringVar(&opts.Username, "username", "", "Username (required)")
	fs.BoolVar(&opts.Yes, "yes", false, "Skip confirmation prompt")
	if err := fs.Parse(args); err != nil {
		return disableOptions{}, err
	}
	opts.Username = strings.TrimSpace(opts.Username)
	if opts.Username == "" {
		return disableOptions{}, errors.New("--username is required")
	}
	return opts, nil
}

func parseListCredentialFlags(args []string) (listCredentialOptions, error) {
	fs := flag.NewFlagSet("list-credentials", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts listCredentialOptions
	fs.BoolVar(&opts.JSON, "json", false, "Print JSON instead of a table")
	if err := fs.Parse(args); err != nil {
		return listCredentialOptions{}, err
	}
	return opts, nil
}

// readPassword takes the first line of r so passwords never appear in argv.
func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("password must be provided on stdin")
	}
	return line, nil
}

func readAndHash(r io.Reader, cost int) (string, error) {
	plain, err := readPassword(r)
	if err != nil {
		return "", err
	}
	return password.HashPassword(plain, cost)
}

func confirm(in io.Reader, out io.Writer, prompt string) (bool, error) {
	if err := writef(out, "%s [y/N]: ", prompt); err != nil {
		return false, err
	}
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("read confirmation: %w", err)
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes", nil
}

type credentialView struct {
	Username  string     `json:"username"`
	Email     string     `json:"email,omitempty"`
	FirstName string     `json:"first_name,omitempty"`
	LastName  string     `json:"last_name,omitempty"`
	Groups    []string   `json:"groups"`
	CreatedAt time.Time  `json:"created_at"`
	Disabled  *time.Time `json:"disabled_at,omitempty"`
}

// printCredentials never prints password hashes.
func printCredentials(w io.Writer, creds []domainauth.Credential, asJSON bool) error {
	if asJSON {
		views := make([]credentialView, 0, len(creds))
		for _, c := range creds {
			groups := c.Groups
			if groups == nil {
				groups = []string{}
			}
			views = append(views, credentialView{
				Username:  c.Username,
				Email:     c.Email,
				FirstName: c.FirstName,
				LastName:  c.LastName,
				Groups:    groups,
				CreatedAt: c.CreatedAt,
				Disabled:  c.DisabledAt,
			})
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	}

	if len(creds) == 0 {
		return writef(w, "no credentials\n")
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writef(tw, "USERNAME\tEMAIL\tGROUPS\tSTATUS\tCREATED\n"); err != nil {
		return err
	}
	for _, c := range creds {
		status := "active"
		if c.Disabled() {
			status = "disabled"
		}
		if err := writef(tw, "%s\t%s\t%s\t%s\t%s\n",
			c.Username, c.Email, strings.Join(c.Groups, ","), status, c.CreatedAt.Format(time.RFC3339),
		); err != nil {
			return err
		}
	}
	return tw.Flush()
}
