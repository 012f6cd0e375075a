package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/stemsi/examroom/internal/config"
	"github.com/stemsi/examroom/internal/database"
	"github.com/stemsi/examroom/internal/logger"
	"github.com/stemsi/examroom/internal/model"
	"github.com/stemsi/examroom/internal/repository"
	"github.com/stemsi/examroom/internal/service"
	"golang.org/x/term"
)

// issue-token stands in for the identity provider during development: it
// mirrors a profile into the users table and prints a signed token for it.
func main() {
	var (
		id      string
		name    string
		role    string
		ttl     time.Duration
		noStore bool
	)
	flag.StringVar(&id, "id", "", "User ID (token subject)")
	flag.StringVar(&name, "name", "", "Display name")
	flag.StringVar(&role, "role", string(model.RoleStudent), "Role: TEACHER or STUDENT")
	flag.DurationVar(&ttl, "ttl", 0, "Token lifetime (default JWT_EXPIRY_HOURS)")
	flag.BoolVar(&noStore, "no-db", false, "Skip writing the profile to the database")
	flag.Parse()

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	identity := service.Identity{
		ID:          strings.TrimSpace(id),
		DisplayName: strings.TrimSpace(name),
		Role:        model.Role(strings.ToUpper(strings.TrimSpace(role))),
	}
	if identity.ID == "" {
		fmt.Fprintln(os.Stderr, "Error: -id is required")
		flag.Usage()
		os.Exit(2)
	}
	if identity.DisplayName == "" {
		identity.DisplayName = identity.ID
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// ─── Sign Token ────────────────────────────────────────────────────
	auth := service.NewAuthService(cfg, nil)
	token, err := auth.IssueToken(identity, ttl)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to issue token")
	}

	// ─── Mirror Profile ────────────────────────────────────────────────
	if !noStore {
		pool, err := database.NewPostgresPool(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		defer pool.Close()

		users := service.NewUserService(repository.NewUserRepository(pool), log)
		if _, err := users.SyncProfile(ctx, identity, identity.DisplayName); err != nil {
			log.Fatal().Err(err).Msg("Failed to store profile")
		}
	}

	// Piped output is just the token so it can be captured by scripts.
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Println(token)
		return
	}

	expiry := ttl
	if expiry <= 0 {
		expiry = cfg.JWTExpiry
	}
	fmt.Printf("\nToken for %s (%s, %s), valid for %s:\n\n%s\n\n", identity.DisplayName, identity.ID, identity.Role, expiry, token)
}
