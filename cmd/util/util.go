package util

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ValentinKolb/idxdb/lib/common"
	"github.com/ValentinKolb/idxdb/lib/host"
	"github.com/ValentinKolb/idxdb/lib/host/codec"
	"github.com/ValentinKolb/idxdb/lib/host/engines/bolt"
	"github.com/ValentinKolb/idxdb/lib/host/engines/memory"
	"github.com/ValentinKolb/idxdb/lib/idxdb"
	"github.com/ValentinKolb/idxdb/lib/idxdb/schema"
	"github.com/joho/godotenv"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

var Logger = logger.GetLogger("cli")

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupClientFlags adds the engine and database flags to a command
func SetupClientFlags(cmd *cobra.Command) {
	key := "engine"
	cmd.PersistentFlags().String(key, string(common.EngineBolt), WrapString("The host engine to use (memory, bolt). The memory engine keeps nothing after the command exits"))

	key = "path"
	cmd.PersistentFlags().String(key, "idxdb.bolt", WrapString("Path of the bolt file"))

	key = "codec"
	cmd.PersistentFlags().String(key, "binary", WrapString("Encoding of stored records (binary, json, gob)"))

	key = "no-sync"
	cmd.PersistentFlags().Bool(key, false, WrapString("Skip fsync on commit (bolt only, unsafe)"))

	key = "db"
	cmd.PersistentFlags().String(key, idxdb.DefaultConfig().DBName, WrapString("Name of the database"))

	key = "db-version"
	cmd.PersistentFlags().Uint64(key, 0, WrapString("Version to open the database at (0 = the stored version). A higher version creates the stores declared in the schema"))

	key = "schema"
	cmd.PersistentFlags().String(key, "", WrapString("Optional schema file (.toml, .yaml) that declares name, version and stores of the database"))

	key = "transient"
	cmd.PersistentFlags().Bool(key, false, WrapString("Create the query and command adapters per operation instead of reusing them"))

	key = "timeout"
	cmd.PersistentFlags().Int(key, 10, WrapString("The timeout in seconds of a command (0 = none)"))

	key = "log-level"
	cmd.PersistentFlags().String(key, "warn", WrapString("Log level (debug, info, warn, error)"))

	key = "metrics"
	cmd.PersistentFlags().Bool(key, false, WrapString("Print the operation metrics in Prometheus format to stderr after the command"))
}

// InitClientConfig initializes configuration from environment variables
func InitClientConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("idxdb")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// GetClientConfig reads client configuration from viper
func GetClientConfig() *common.ClientConfig {
	return &common.ClientConfig{
		Engine:        common.EngineType(viper.GetString("engine")),
		Path:          viper.GetString("path"),
		Codec:         viper.GetString("codec"),
		NoSync:        viper.GetBool("no-sync"),
		DBName:        viper.GetString("db"),
		Version:       viper.GetUint64("db-version"),
		SchemaFile:    viper.GetString("schema"),
		Transient:     viper.GetBool("transient"),
		TimeoutSecond: viper.GetInt("timeout"),
		LogLevel:      viper.GetString("log-level"),
	}
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// --------------------------------------------------------------------------
// Database helpers
// --------------------------------------------------------------------------

// GetCodec creates the record codec based on configuration
func GetCodec(conf *common.ClientConfig) (codec.Codec, error) {
	switch conf.Codec {
	case "binary":
		return codec.NewBinaryCodec(), nil
	case "json":
		return codec.NewJSONCodec(), nil
	case "gob":
		return codec.NewGOBCodec(), nil
	default:
		return nil, fmt.Errorf("invalid codec %s", conf.Codec)
	}
}

// GetFactory creates the host facility based on configuration
func GetFactory(conf *common.ClientConfig) (host.Factory, error) {
	c, err := GetCodec(conf)
	if err != nil {
		return nil, err
	}
	switch conf.Engine {
	case common.EngineMemory:
		return memory.NewFactory(&memory.Options{Codec: c}), nil
	case common.EngineBolt:
		opts := bolt.DefaultOptions(conf.Path)
		opts.Codec = c
		opts.NoSync = conf.NoSync
		return bolt.NewFactory(opts)
	default:
		return nil, fmt.Errorf("invalid engine %s", conf.Engine)
	}
}

// GetDBConfig builds the idxdb configuration from the schema file (if any)
// and the flags. Flags that are set explicitly override the schema.
func GetDBConfig(conf *common.ClientConfig) (idxdb.Config, error) {
	cfg := idxdb.DefaultConfig()
	if conf.SchemaFile != "" {
		var err error
		if cfg, err = schema.Load(conf.SchemaFile); err != nil {
			return idxdb.Config{}, err
		}
	}
	if conf.SchemaFile == "" || viper.IsSet("db") {
		cfg.DBName = conf.DBName
	}
	if conf.SchemaFile == "" || viper.IsSet("db-version") {
		cfg.Version = conf.Version
	}
	if conf.Transient {
		cfg.PersistentQuery = false
		cfg.PersistentCommand = false
	}
	return cfg, nil
}

// CommandContext returns the context of a command, bounded by the timeout
func CommandContext(conf *common.ClientConfig) (context.Context, context.CancelFunc) {
	if timeout := conf.Timeout(); timeout > 0 {
		return context.WithTimeout(context.Background(), timeout)
	}
	return context.WithCancel(context.Background())
}

// WithDB opens the configured database, runs fn and closes everything again
func WithDB(fn func(ctx context.Context, db *idxdb.DB) error) error {
	conf := GetClientConfig()
	if err := conf.Validate(); err != nil {
		return err
	}
	cfg, err := GetDBConfig(conf)
	if err != nil {
		return err
	}

	ctx, cancel := CommandContext(conf)
	defer cancel()

	factory, err := GetFactory(conf)
	if err != nil {
		return err
	}
	defer func() {
		if err := factory.Close(); err != nil {
			Logger.Errorf("closing the host facility failed: %v", err)
		}
	}()

	db, err := idxdb.Init(ctx, factory, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			Logger.Errorf("closing %q failed: %v", cfg.DBName, err)
		}
	}()

	return fn(ctx, db)
}

// --------------------------------------------------------------------------
// Argument parsing and output
// --------------------------------------------------------------------------

// ParseValue parses a JSON argument. Arguments that are not valid JSON are
// taken as plain strings.
func ParseValue(arg string) any {
	var v any
	if err := json.Unmarshal([]byte(arg), &v); err != nil {
		return arg
	}
	return v
}

// ParseKey parses a key argument the way ParseValue does. Numbers and arrays
// have to be given as JSON, everything else is a string key.
func ParseKey(arg string) host.Key {
	v := ParseValue(arg)
	if !host.ValidKey(v) {
		return arg
	}
	return v
}

// PrintJSON writes v as indented JSON to stdout
func PrintJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
