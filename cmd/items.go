package main

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/catalog-enrich/internal/model"
)

var itemsFile string

var itemsCmd = &cobra.Command{
	Use:   "items",
	Short: "Manage catalog items",
}

var itemsImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import catalog items from a YAML file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		items, err := loadItems(itemsFile)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.UpsertItems(ctx, items)
		if err != nil {
			return eris.Wrap(err, "import items")
		}

		zap.L().Info("import complete",
			zap.Int("upserted", n),
			zap.String("file", itemsFile),
		)
		return nil
	},
}

func init() {
	itemsImportCmd.Flags().StringVar(&itemsFile, "file", "", "path to items YAML file (required)")
	_ = itemsImportCmd.MarkFlagRequired("file")
	itemsCmd.AddCommand(itemsImportCmd)
	rootCmd.AddCommand(itemsCmd)
}

// itemsDocument is the import file shape: `items: [{id, name, sku, ...}]`.
type itemsDocument struct {
	Items []model.Item `yaml:"items"`
}

// loadItems reads and validates an items file. Every item needs an ID and a
// name; IDs must be unique.
func loadItems(path string) ([]model.Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read items file %s", path)
	}
	var doc itemsDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrapf(err, "parse items file %s", path)
	}

	seen := make(map[string]bool, len(doc.Items))
	for i := range doc.Items {
		it := &doc.Items[i]
		it.ID = strings.TrimSpace(it.ID)
		it.Name = strings.TrimSpace(it.Name)
		if it.ID == "" || it.Name == "" {
			return nil, eris.Errorf("items file %s: entry %d needs id and name", path, i+1)
		}
		if seen[it.ID] {
			return nil, eris.Errorf("items file %s: duplicate id %q", path, it.ID)
		}
		seen[it.ID] = true
		if it.EnrichmentStatus == "" {
			it.EnrichmentStatus = model.EnrichmentPending
		}
	}
	return doc.Items, nil
}
