package config

// Package config provides a reusable loader for the archival node's
// configuration files and environment variables. It is versioned so that
// applications can depend on a stable API contract.
//
// Version: v0.1.0

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"spoolchain/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config is the unified configuration for a spoolchain archival node. It
// mirrors the structure of the YAML files under config/.
type Config struct {
	Ledger struct {
		RPCEndpoint    string `mapstructure:"rpc_endpoint" json:"rpc_endpoint"`
		WSEndpoint     string `mapstructure:"ws_endpoint" json:"ws_endpoint"`
		ProgramID      string `mapstructure:"program_id" json:"program_id"`
		MinerAuthority string `mapstructure:"miner_authority" json:"miner_authority"`
		MinerName      string `mapstructure:"miner_name" json:"miner_name"`
	} `mapstructure:"ledger" json:"ledger"`

	Store struct {
		Path         string `mapstructure:"path" json:"path"`
		ReadMinePath string `mapstructure:"read_mine_path" json:"read_mine_path"`
		ReadWebPath  string `mapstructure:"read_web_path" json:"read_web_path"`
		SnapshotDir  string `mapstructure:"snapshot_dir" json:"snapshot_dir"`
	} `mapstructure:"store" json:"store"`

	Packer struct {
		Workers       int `mapstructure:"workers" json:"workers"`
		JobQueueDepth int `mapstructure:"job_queue_depth" json:"job_queue_depth"`
	} `mapstructure:"packer" json:"packer"`

	Ingest struct {
		ChallengeIntervalSeconds int `mapstructure:"challenge_interval_seconds" json:"challenge_interval_seconds"`
		ResyncBatchSize          int `mapstructure:"resync_batch_size" json:"resync_batch_size"`
	} `mapstructure:"ingest" json:"ingest"`

	Metrics struct {
		WebPort     int `mapstructure:"web_port" json:"web_port"`
		MinePort    int `mapstructure:"mine_port" json:"mine_port"`
		ArchivePort int `mapstructure:"archive_port" json:"archive_port"`
	} `mapstructure:"metrics" json:"metrics"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// defaults seeds viper with the fixed values spec §6 names, so a node
// started with no config file at all still binds its store paths and
// metrics ports predictably.
func defaults() {
	viper.SetDefault("store.path", "db_spoolstore")
	viper.SetDefault("store.read_mine_path", "db_spoolstore_read_mine")
	viper.SetDefault("store.read_web_path", "db_spoolstore_read_web")
	viper.SetDefault("store.snapshot_dir", "snapshots")
	viper.SetDefault("packer.workers", 4)
	viper.SetDefault("packer.job_queue_depth", 256)
	viper.SetDefault("ingest.challenge_interval_seconds", 10)
	viper.SetDefault("ingest.resync_batch_size", 1024)
	viper.SetDefault("metrics.web_port", 8873)
	viper.SetDefault("metrics.mine_port", 8874)
	viper.SetDefault("metrics.archive_port", 8875)
	viper.SetDefault("logging.level", "info")
}

// Load reads configuration files and merges any environment-specific
// overrides. The resulting configuration is stored in AppConfig and
// returned. A missing base config file is tolerated: defaults() plus
// environment variables are enough to run.
func Load(env string) (*Config, error) {
	_ = godotenv.Load()

	defaults()
	viper.SetConfigName("default")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, utils.Wrap(err, "load config")
		}
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.SetEnvPrefix("spoolnode")
	viper.AutomaticEnv()

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the SPOOLNODE_ENV environment
// variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("SPOOLNODE_ENV", ""))
}
