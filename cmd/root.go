package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-enrich/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "catalog-enrich",
	Short: "Verified catalog enrichment pipeline",
	Long:  "Classifies item images, discovers reference pages, verifies extracted facts through four gates, and writes the enriched record back to the catalog.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		applyRootFlags(cmd.Flags(), c)
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}
		zap.ReplaceGlobals(zap.L().With(
			zap.String("command", cmd.Name()),
			zap.String("store_driver", cfg.Store.Driver),
		))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("store", "", "catalog store backend: sqlite or postgres (overrides CATALOG_STORE_DRIVER)")
	pf.String("db", "", "sqlite path or postgres URL (overrides CATALOG_STORE_DATABASE_URL)")
	pf.String("log-level", "", "debug, info, warn or error")
	pf.String("log-format", "", "json or console")
}

// applyRootFlags copies the persistent flags the user set onto c, so an
// explicit flag wins over config.yaml and the environment.
func applyRootFlags(fs *pflag.FlagSet, c *config.Config) {
	for name, dst := range map[string]*string{
		"store":      &c.Store.Driver,
		"db":         &c.Store.DatabaseURL,
		"log-level":  &c.Log.Level,
		"log-format": &c.Log.Format,
	} {
		if !fs.Changed(name) {
			continue
		}
		if v, err := fs.GetString(name); err == nil {
			*dst = v
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
