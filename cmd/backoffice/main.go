package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/fixr105/Seven-Render-sub002/internal/app"
	"github.com/fixr105/Seven-Render-sub002/internal/cache"
	"github.com/fixr105/Seven-Render-sub002/internal/config"
	"github.com/fixr105/Seven-Render-sub002/internal/logging"
	"github.com/fixr105/Seven-Render-sub002/internal/notify"
	"github.com/fixr105/Seven-Render-sub002/internal/rbac"
	"github.com/fixr105/Seven-Render-sub002/internal/store"
)

var Version = "dev"

// actorFlags describe the already-authenticated caller a command acts as.
type actorFlags struct {
	id       string
	role     string
	clientID string
	kamID    string
	nbfcID   string
	email    string
}

func (f actorFlags) actor() (rbac.Actor, error) {
	role := rbac.Normalize(f.role)
	if role == "" {
		return rbac.Actor{}, fmt.Errorf("unknown role %q", f.role)
	}
	return rbac.Actor{
		ID:       f.id,
		Role:     role,
		ClientID: f.clientID,
		KAMID:    f.kamID,
		NBFCID:   f.nbfcID,
		Email:    f.email,
	}, nil
}

// env is everything a command needs, built lazily so that commands that do
// not touch the database (transitions) run without one.
type env struct {
	cfg     config.Config
	logger  *logrus.Logger
	db      *sql.DB
	closers []io.Closer
}

func (e *env) open(ctx context.Context) error {
	if e.db != nil {
		return nil
	}
	db, err := store.Open(ctx, e.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	e.db = db
	e.closers = append(e.closers, db)
	return nil
}

func (e *env) service(ctx context.Context) (*app.Service, error) {
	if err := e.open(ctx); err != nil {
		return nil, err
	}
	if err := store.Ready(ctx, e.db); err != nil {
		return nil, err
	}

	var setCache cache.SetCache = cache.NewMemory()
	if strings.TrimSpace(e.cfg.RedisURL) != "" {
		redisCache, err := cache.NewRedisCache(e.cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}
		e.closers = append(e.closers, redisCache)
		setCache = redisCache
	}

	notifier := notify.New(notify.Config{
		Host:     e.cfg.SMTPHost,
		Port:     e.cfg.SMTPPort,
		Username: e.cfg.SMTPUsername,
		Password: e.cfg.SMTPPassword,
		From:     e.cfg.SMTPFrom,
		FromName: e.cfg.SMTPFromName,
	}, e.logger)

	return app.New(e.cfg, store.NewRecordStore(e.db), setCache, notifier, e.logger), nil
}

func (e *env) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i].Close(); err != nil {
			logging.LogError(e.logger, "backoffice", "close", "release resource", nil, err)
		}
	}
}

func printJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func main() {
	cfg := config.Load()
	e := &env{cfg: cfg, logger: logging.New(cfg.LogLevel)}
	defer e.close()

	var who actorFlags
	rootCmd := &cobra.Command{
		Use:           "backoffice",
		Short:         "Loan back-office operations against the record store",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&who.id, "as-id", "", "actor id")
	flags.StringVar(&who.role, "as-role", "credit", "actor role (client, kam, credit, nbfc, admin)")
	flags.StringVar(&who.clientID, "as-client", "", "actor client id")
	flags.StringVar(&who.kamID, "as-kam", "", "actor KAM id")
	flags.StringVar(&who.nbfcID, "as-nbfc", "", "actor NBFC id")
	flags.StringVar(&who.email, "as-email", "", "actor email")

	rootCmd.AddCommand(migrateCmd(e))
	rootCmd.AddCommand(balanceCmd(e, &who))
	rootCmd.AddCommand(threadsCmd(e, &who))
	rootCmd.AddCommand(scopeCmd(e, &who))
	rootCmd.AddCommand(statusCmd(e, &who))
	rootCmd.AddCommand(disburseCmd(e, &who))
	rootCmd.AddCommand(transitionsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		e.close()
		os.Exit(1)
	}
}
