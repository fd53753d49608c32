// Package config loads the settings of the bagginsindex daemon.
package config

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/indexerr"
	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/keys"
	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/marshal"
	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/options"
)

// EnvPrefix prefixes environment overrides, e.g. BAGGINSINDEX_SERVER_GRPC_ADDR.
const EnvPrefix = "BAGGINSINDEX"

type ColumnConfig struct {
	Name string `mapstructure:"name" validate:"required"`
	// Type is a CQL type name such as text, bigint or list<int>.
	Type string `mapstructure:"type" validate:"required"`
}

type TableConfig struct {
	Keyspace     string         `mapstructure:"keyspace" validate:"required"`
	Name         string         `mapstructure:"name" validate:"required"`
	PartitionKey string         `mapstructure:"partition_key" validate:"required"`
	Clustering   []string       `mapstructure:"clustering"`
	Columns      []ColumnConfig `mapstructure:"columns" validate:"required,min=1,dive"`
}

type Config struct {
	AppName string `mapstructure:"app_name" validate:"required"`

	Server struct {
		GRPCAddr    string `mapstructure:"grpc_addr" validate:"required,hostname_port"`
		MetricsAddr string `mapstructure:"metrics_addr" validate:"required,hostname_port"`
	} `mapstructure:"server"`

	Log struct {
		// Name is the log file name under logs/.
		Name  string `mapstructure:"name" validate:"required"`
		Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	} `mapstructure:"log"`

	Clock struct {
		// NTPServer is empty to use the host clock.
		NTPServer    string        `mapstructure:"ntp_server"`
		SyncInterval time.Duration `mapstructure:"sync_interval" validate:"required_with=NTPServer,gte=0"`
	} `mapstructure:"clock"`

	Index struct {
		Dir            string `mapstructure:"dir" validate:"required"`
		Shards         int    `mapstructure:"shards" validate:"min=1,max=64"`
		FlushThreshold int    `mapstructure:"flush_threshold" validate:"min=0"`
		WAL            bool   `mapstructure:"wal"`
		// Columns are the indexed columns of the table.
		Columns []string `mapstructure:"columns" validate:"required,min=1,dive,required"`
		// Options are passed to every index, see package options.
		Options map[string]string `mapstructure:"options"`
	} `mapstructure:"index"`

	Table TableConfig `mapstructure:"table"`

	// Seed is a YAML rows file written through the indexes at startup.
	Seed string `mapstructure:"seed" validate:"omitempty,file"`

	Tracing struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"tracing"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_name", "bagginsindex")
	v.SetDefault("server.grpc_addr", "localhost:50051")
	v.SetDefault("server.metrics_addr", "localhost:9090")
	v.SetDefault("log.name", "bagginsindex")
	v.SetDefault("log.level", "info")
	v.SetDefault("clock.sync_interval", time.Minute)
	v.SetDefault("index.dir", "_index")
	v.SetDefault("index.shards", 4)
	v.SetDefault("index.flush_threshold", 10000)
	v.SetDefault("index.wal", true)
}

// Load reads the YAML file at path, applies environment overrides and
// defaults, and validates the result. An empty path loads defaults and
// environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, indexerr.Wrap(err, indexerr.CodeConfig, "config.Load", "read %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, indexerr.Wrap(err, indexerr.CodeConfig, "config.Load", "unmarshal")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct constraints and that every type name parses and
// every indexed column exists.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return indexerr.Wrap(err, indexerr.CodeConfig, "config.Validate", "invalid config")
	}
	f, err := c.Family()
	if err != nil {
		return err
	}
	for _, col := range c.Index.Columns {
		if _, ok := f.Column(col); !ok {
			return indexerr.New(indexerr.CodeConfig, "config.Validate", "indexed column %q is not in table %s", col, c.Table.Name)
		}
	}
	return nil
}

// Family builds the metadata of the configured table.
func (c *Config) Family() (*keys.FamilyMeta, error) {
	t := c.Table
	pk, err := marshal.Parse(t.PartitionKey)
	if err != nil {
		return nil, indexerr.Wrap(err, indexerr.CodeConfig, "config.Family", "partition key")
	}
	clustering := make([]*marshal.Type, 0, len(t.Clustering))
	for _, name := range t.Clustering {
		ct, err := marshal.Parse(name)
		if err != nil {
			return nil, indexerr.Wrap(err, indexerr.CodeConfig, "config.Family", "clustering column")
		}
		clustering = append(clustering, ct)
	}
	columns := make([]keys.ColumnDescriptor, 0, len(t.Columns))
	for _, col := range t.Columns {
		vt, err := marshal.Parse(col.Type)
		if err != nil {
			return nil, indexerr.Wrap(err, indexerr.CodeConfig, "config.Family", "column %s", col.Name)
		}
		columns = append(columns, keys.ColumnDescriptor{Name: col.Name, Validator: vt})
	}
	return keys.NewTable(t.Keyspace, t.Name, pk, clustering, columns), nil
}

// IndexOptions returns the options of the index on column: the configured
// options plus the index directory and a file name per column.
func (c *Config) IndexOptions(column string) options.Options {
	opts := make(options.Options, len(c.Index.Options)+2)
	for k, v := range c.Index.Options {
		opts[k] = v
	}
	opts[options.IndexDirName] = c.Index.Dir
	opts[options.IndexFileName] = column
	return opts
}
