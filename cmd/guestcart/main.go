// Command guestcart manages a device-local guest cart and merges it into the
// user's server cart after login.
package main

import (
	"fmt"
	"os"

	"github.com/fjod/storefront/internal/config"
	"github.com/fjod/storefront/internal/guestcart"
	"github.com/fjod/storefront/internal/kv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type app struct {
	dbPath    string
	redisAddr string
	key       string
	rulesFile string
	verbose   bool

	logger *zap.Logger
	store  *guestcart.Store
	close  func() error
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:          "guestcart",
		Short:        "Manage the guest cart kept on this device",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.shutdown()
		},
	}

	root.PersistentFlags().StringVar(&a.dbPath, "db", "guestcart.db", "SQLite file holding the guest cart")
	root.PersistentFlags().StringVar(&a.redisAddr, "redis", "", "Redis address; overrides --db when set")
	root.PersistentFlags().StringVar(&a.key, "key", guestcart.DefaultKey, "Storage key of the guest cart")
	root.PersistentFlags().StringVar(&a.rulesFile, "rules", "", "Variation rules YAML file")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose logging")

	root.AddCommand(
		newListCmd(a),
		newAddCmd(a),
		newUpdateCmd(a),
		newRemoveCmd(a),
		newClearCmd(a),
		newCountCmd(a),
		newTotalCmd(a),
		newMergeCmd(a),
	)
	return root
}

func (a *app) open() error {
	zcfg := zap.NewDevelopmentConfig()
	zcfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if a.verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := zcfg.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.logger = logger

	matcher, err := config.LoadVariationRules(a.rulesFile)
	if err != nil {
		return err
	}

	var storage kv.Store
	if a.redisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: a.redisAddr})
		storage = kv.NewRedis(client, "", 0)
		a.close = client.Close
	} else {
		db, err := kv.OpenSQLite(a.dbPath)
		if err != nil {
			return err
		}
		storage = db
		a.close = db.Close
	}

	a.store = guestcart.NewStore(storage,
		guestcart.WithKey(a.key),
		guestcart.WithMatcher(matcher),
		guestcart.WithLogger(logger))
	return nil
}

func (a *app) shutdown() error {
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	if a.close != nil {
		return a.close()
	}
	return nil
}
