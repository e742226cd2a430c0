package config

import (
	"reflect"
	"strings"

	"data-manager/core/database"
	"data-manager/core/logger"
	"data-manager/core/storage"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ExportConfig holds configuration for dataset export output.
type ExportConfig struct {
	// OutputDir is the root directory for exported files.
	OutputDir string `mapstructure:"output_dir" default:"./out"`
	// StateFile is the JSON snapshot tracking per-file watermarks.
	StateFile string `mapstructure:"state_file" default:"./out/.filestate.json"`
	// Publish uploads the output directory to object storage after export.
	Publish bool `mapstructure:"publish" default:"false"`
}

// Config holds all configuration for the application.
// It is divided into partial configurations for better modularity.
type Config struct {
	// Cluster is the path to the declarative cluster configuration file
	// (databases, tables, datasets).
	Cluster string `mapstructure:"cluster" default:"cluster.yaml"`
	// Export holds configuration for dataset export output.
	Export ExportConfig `mapstructure:"export"`
	// Log holds configuration for the logger.
	Log logger.Config `mapstructure:"log"`
	// Database holds configuration for the database backend.
	Database database.Config `mapstructure:"database"`
	// Storage holds configuration for the publication object storage.
	Storage storage.Config `mapstructure:"storage"`
}

// LoadConfig loads configuration from environment variables and .env file.
func LoadConfig(path string) (*Config, error) {
	// 1. Load .env file if it exists
	envPath := path + "/.env"
	if path == "." {
		envPath = ".env"
	}

	// Ignore error if file doesn't exist (e.g. production)
	_ = godotenv.Overload(envPath)

	v := viper.New()

	// Recursively parse struct tags to set default values
	bindValues(v, Config{}, "")

	// Map environment variables to nested keys (e.g. EXPORT_OUTPUT_DIR -> export.output_dir)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// bindValues uses reflection to iterate over the struct and set default values in Viper
// based on the 'default' and 'mapstructure' tags.
func bindValues(v *viper.Viper, iface any, prefix string) {
	t := reflect.TypeOf(iface)

	// If it's a pointer, get the element
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")

		// Skip if no tag
		if tag == "" {
			continue
		}

		// Build the key
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		// If it's a nested struct, recurse
		if field.Type.Kind() == reflect.Struct {
			bindValues(v, reflect.New(field.Type).Elem().Interface(), key)
			continue
		}

		defaultValue := field.Tag.Get("default")
		// Always set default (even if empty) to register the key for AutomaticEnv
		v.SetDefault(key, defaultValue)
	}
}
