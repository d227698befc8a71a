package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/ValentinKolb/idxdb/cmd/util"
	"github.com/ValentinKolb/idxdb/lib/host"
	"github.com/ValentinKolb/idxdb/lib/idxdb"
	"github.com/spf13/cobra"
)

// errLimitReached stops a scan once --limit records were printed
var errLimitReached = errors.New("limit reached")

var (
	addCmd = &cobra.Command{
		Use:   "add [store] [json]...",
		Short: "Adds records to a store in one transaction",
		Long:  util.WrapString("Adds records to a store in one transaction. If any record cannot be added (e.g. because its key exists), none is stored."),
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			records := make([]any, 0, len(args)-1)
			for _, arg := range args[1:] {
				records = append(records, util.ParseValue(arg))
			}
			return util.WithDB(func(ctx context.Context, db *idxdb.DB) error {
				created, err := storeOf(cmd, db, args[0]).Create(ctx, records...)
				if err != nil {
					return err
				}
				fmt.Printf("added %d record(s)\n", len(created))
				return nil
			})
		},
	}
	putCmd = &cobra.Command{
		Use:   "put [store] [json]",
		Short: "Inserts or replaces a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var key host.Key
			if raw, _ := cmd.Flags().GetString("key"); raw != "" {
				key = util.ParseKey(raw)
			}
			return util.WithDB(func(ctx context.Context, db *idxdb.DB) error {
				stored, err := storeOf(cmd, db, args[0]).Update(ctx, util.ParseValue(args[1]), key)
				if err != nil {
					return err
				}
				fmt.Printf("put successfully, key=%s\n", formatKey(stored))
				return nil
			})
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [store]",
		Short: "Reads all records, one record by key or one record by index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := queryOf(cmd)
			if err != nil {
				return err
			}
			return util.WithDB(func(ctx context.Context, db *idxdb.DB) error {
				result, err := storeOf(cmd, db, args[0]).Get(ctx, query)
				if err != nil {
					return err
				}
				return util.PrintJSON(result)
			})
		},
	}
	scanCmd = &cobra.Command{
		Use:   "scan [store]",
		Short: "Prints the records of a store in key order, one JSON document per line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, _ := cmd.Flags().GetString("index")
			limit, _ := cmd.Flags().GetInt("limit")
			encoder := json.NewEncoder(os.Stdout)
			printed := 0
			return util.WithDB(func(ctx context.Context, db *idxdb.DB) error {
				_, err := storeOf(cmd, db, args[0]).Cursor(ctx, func(_ context.Context, record any) (any, error) {
					if err := encoder.Encode(record); err != nil {
						return nil, err
					}
					printed++
					if limit > 0 && printed >= limit {
						return nil, errLimitReached
					}
					return record, nil
				}, index)
				if errors.Is(err, errLimitReached) {
					return nil
				}
				return err
			})
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [store] [key]",
		Short: "Deletes the record stored under a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return util.WithDB(func(ctx context.Context, db *idxdb.DB) error {
				if err := storeOf(cmd, db, args[0]).Delete(ctx, util.ParseKey(args[1])); err != nil {
					return err
				}
				fmt.Println("delete successfully")
				return nil
			})
		},
	}
)

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// storeOf returns the store handle for name with the mode given by --mode
func storeOf(cmd *cobra.Command, db *idxdb.DB, name string) *idxdb.Store {
	store := db.Store(name)
	if mode, _ := cmd.Flags().GetString("mode"); mode != "" {
		store = store.WithMode(host.Mode(mode))
	}
	return store
}

// queryOf builds the query from the flags of the get command
func queryOf(cmd *cobra.Command) (idxdb.Query, error) {
	key, _ := cmd.Flags().GetString("key")
	index, _ := cmd.Flags().GetString("index")
	value, _ := cmd.Flags().GetString("value")
	switch {
	case key != "" && index != "":
		return idxdb.Query{}, fmt.Errorf("--key and --index are mutually exclusive")
	case key != "":
		return idxdb.ByKey(util.ParseKey(key)), nil
	case index != "":
		if !cmd.Flags().Changed("value") {
			return idxdb.Query{}, fmt.Errorf("--index requires --value")
		}
		return idxdb.ByIndex(index, util.ParseKey(value)), nil
	}
	return idxdb.All(), nil
}

func formatKey(key host.Key) string {
	raw, err := json.Marshal(key)
	if err != nil {
		return fmt.Sprint(key)
	}
	return string(raw)
}
