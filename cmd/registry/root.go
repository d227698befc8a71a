package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/ValentinKolb/idxdb/cmd/util"
	"github.com/ValentinKolb/idxdb/lib/idxdb"
	"github.com/spf13/cobra"
)

var (
	// Commands are the store registry commands
	Commands = []*cobra.Command{infoCmd, initCmd, createStoreCmd}

	infoCmd = &cobra.Command{
		Use:   "info",
		Short: "Prints name, version and stores of the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return util.WithDB(func(ctx context.Context, db *idxdb.DB) error {
				return util.PrintJSON(db.Info())
			})
		},
	}
	initCmd = &cobra.Command{
		Use:   "init",
		Short: "Opens the database and creates the stores declared in the schema",
		Long: util.WrapString(`Opens the database at the version of the schema file (or --db-version).
If the version is newer than the stored one, every declared store that does not exist yet is created.`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return util.WithDB(func(ctx context.Context, db *idxdb.DB) error {
				info := db.Info()
				fmt.Printf("initialized %s (version %d) with stores %s\n", info.Name, info.Version, strings.Join(info.Stores, ", "))
				return nil
			})
		},
	}
	createStoreCmd = &cobra.Command{
		Use:   "create-store [name]",
		Short: "Creates a store by upgrading the database to the next version",
		Long:  util.WrapString("Creates a store by upgrading the database to the next version. Without flags the store generates its keys."),
		Args:  cobra.ExactArgs(1),
		RunE:  runCreateStore,
	}
)

func init() {
	key := "key-path"
	createStoreCmd.Flags().String(key, "", util.WrapString("Key path of the store (empty = out-of-line keys)"))
	key = "auto-increment"
	createStoreCmd.Flags().Bool(key, false, util.WrapString("Let the store generate keys"))
	key = "index"
	createStoreCmd.Flags().StringArray(key, nil, util.WrapString("Index to create as name:keyPath[:unique][:multi]. Can be repeated"))
}

func runCreateStore(cmd *cobra.Command, args []string) error {
	name := args[0]
	keyPath, _ := cmd.Flags().GetString("key-path")
	autoIncrement, _ := cmd.Flags().GetBool("auto-increment")
	indexes, _ := cmd.Flags().GetStringArray("index")

	var opts []idxdb.StoreOption
	if keyPath != "" {
		opts = append(opts, idxdb.KeyPath(keyPath))
	}
	if autoIncrement {
		opts = append(opts, idxdb.AutoIncrement())
	}
	for _, def := range indexes {
		opt, err := ParseIndex(def)
		if err != nil {
			return err
		}
		opts = append(opts, opt)
	}

	return util.WithDB(func(ctx context.Context, db *idxdb.DB) error {
		if err := db.CreateStore(ctx, name, opts...); err != nil {
			return err
		}
		fmt.Printf("created store %s (version %d)\n", name, db.Info().Version)
		return nil
	})
}

// ParseIndex parses an index flag of the form name:keyPath[:unique][:multi]
func ParseIndex(def string) (idxdb.StoreOption, error) {
	parts := strings.Split(def, ":")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("invalid index %q (expected name:keyPath[:unique][:multi])", def)
	}
	var opts []idxdb.IndexOption
	for _, flag := range parts[2:] {
		switch flag {
		case "unique":
			opts = append(opts, idxdb.Unique())
		case "multi", "multi-entry":
			opts = append(opts, idxdb.MultiEntry())
		default:
			return nil, fmt.Errorf("invalid index option %q in %q", flag, def)
		}
	}
	return idxdb.WithIndex(parts[0], parts[1], opts...), nil
}
