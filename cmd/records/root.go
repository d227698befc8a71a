package records

import (
	"github.com/ValentinKolb/idxdb/cmd/util"
	"github.com/spf13/cobra"
)

// Commands are the record commands
var Commands = []*cobra.Command{addCmd, putCmd, getCmd, scanCmd, delCmd, perfTestCmd}

func init() {
	key := "key"
	putCmd.Flags().String(key, "", util.WrapString("Explicit key for stores without key path (JSON for numbers and arrays)"))

	key = "key"
	getCmd.Flags().String(key, "", util.WrapString("Return the record stored under this key"))
	key = "index"
	getCmd.Flags().String(key, "", util.WrapString("Look the record up through this index (requires --value)"))
	key = "value"
	getCmd.Flags().String(key, "", util.WrapString("Index key to look up"))

	key = "index"
	scanCmd.Flags().String(key, "", util.WrapString("Iterate in the order of this index instead of the primary key"))
	key = "limit"
	scanCmd.Flags().Int(key, 0, util.WrapString("Stop after this many records (0 = all)"))

	key = "mode"
	for _, cmd := range []*cobra.Command{addCmd, putCmd, getCmd, scanCmd, delCmd} {
		cmd.Flags().String(key, "", util.WrapString("Transaction mode (readonly, readwrite). Defaults to readonly for reads and readwrite for writes"))
	}
}
