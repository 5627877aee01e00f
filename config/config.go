package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tmos "github.com/tendermint/tendermint/libs/os"
)

const (
	// LogFormatPlain is a format for colored text
	LogFormatPlain = "plain"
	// LogFormatJSON is a format for json output
	LogFormatJSON = "json"

	// DefaultLogLevel defines a default log level as INFO.
	DefaultLogLevel = "info"

	defaultConfigDir = "config"
	defaultDataDir   = "data"

	defaultConfigFileName    = "config.toml"
	defaultCommitteeFileName = "committee.json"
	defaultPrivValKeyName    = "priv_validator_key.json"
)

// DefaultDir is the home directory used when --home is not given.
var DefaultDir = ".dagbft"

var (
	defaultConfigFilePath    = filepath.Join(defaultConfigDir, defaultConfigFileName)
	defaultCommitteeFilePath = filepath.Join(defaultConfigDir, defaultCommitteeFileName)
	defaultPrivValKeyPath    = filepath.Join(defaultConfigDir, defaultPrivValKeyName)
)

// Config defines the top level configuration for a dagbft node
type Config struct {
	// Top level options use an anonymous struct
	BaseConfig `mapstructure:",squash"`

	// Options for services
	Consensus       *ConsensusConfig       `mapstructure:"consensus"`
	Mempool         *MempoolConfig         `mapstructure:"mempool"`
	RPC             *RPCConfig             `mapstructure:"rpc"`
	Instrumentation *InstrumentationConfig `mapstructure:"instrumentation"`
}

// DefaultConfig returns a default configuration for a dagbft node
func DefaultConfig() *Config {
	return &Config{
		BaseConfig:      DefaultBaseConfig(),
		Consensus:       DefaultConsensusConfig(),
		Mempool:         DefaultMempoolConfig(),
		RPC:             DefaultRPCConfig(),
		Instrumentation: DefaultInstrumentationConfig(),
	}
}

// TestConfig returns a configuration that can be used for testing
func TestConfig() *Config {
	return &Config{
		BaseConfig:      TestBaseConfig(),
		Consensus:       TestConsensusConfig(),
		Mempool:         DefaultMempoolConfig(),
		RPC:             TestRPCConfig(),
		Instrumentation: DefaultInstrumentationConfig(),
	}
}

// SetRoot sets the RootDir for all Config structs
func (cfg *Config) SetRoot(root string) *Config {
	cfg.BaseConfig.RootDir = root
	return cfg
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *Config) ValidateBasic() error {
	if err := cfg.BaseConfig.ValidateBasic(); err != nil {
		return err
	}
	if err := cfg.Consensus.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [consensus] section: %w", err)
	}
	if err := cfg.Mempool.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [mempool] section: %w", err)
	}
	if err := cfg.RPC.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [rpc] section: %w", err)
	}
	if err := cfg.Instrumentation.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [instrumentation] section: %w", err)
	}
	return nil
}

//-----------------------------------------------------------------------------
// BaseConfig

// BaseConfig defines the base configuration for a dagbft node
type BaseConfig struct {
	// The root directory for all data.
	// This should be set in viper so it can unmarshal into this struct
	RootDir string `mapstructure:"home"`

	// A custom human readable name for this node
	Moniker string `mapstructure:"moniker"`

	// Database backend: goleveldb | memdb
	DBBackend string `mapstructure:"db_backend"`

	// Database directory
	DBPath string `mapstructure:"db_dir"`

	// Output level for logging
	LogLevel string `mapstructure:"log_level"`

	// Output format: 'plain' (colored text) or 'json'
	LogFormat string `mapstructure:"log_format"`

	// Path to the JSON file containing the committee
	Committee string `mapstructure:"committee_file"`

	// Path to the JSON file containing the private key of this authority
	PrivValidatorKey string `mapstructure:"priv_validator_key_file"`
}

// DefaultBaseConfig returns a default base configuration for a dagbft node
func DefaultBaseConfig() BaseConfig {
	return BaseConfig{
		Committee:        defaultCommitteeFilePath,
		PrivValidatorKey: defaultPrivValKeyPath,
		Moniker:          defaultMoniker,
		LogLevel:         DefaultLogLevel,
		LogFormat:        LogFormatPlain,
		DBBackend:        "goleveldb",
		DBPath:           defaultDataDir,
	}
}

// TestBaseConfig returns a base configuration for testing a dagbft node
func TestBaseConfig() BaseConfig {
	cfg := DefaultBaseConfig()
	cfg.Moniker = "test-node"
	cfg.DBBackend = "memdb"
	return cfg
}

// CommitteeFile returns the full path to the committee.json file
func (cfg BaseConfig) CommitteeFile() string {
	return rootify(cfg.Committee, cfg.RootDir)
}

// PrivValidatorKeyFile returns the full path to the priv_validator_key.json file
func (cfg BaseConfig) PrivValidatorKeyFile() string {
	return rootify(cfg.PrivValidatorKey, cfg.RootDir)
}

// ConfigFile returns the full path to the config.toml file
func (cfg BaseConfig) ConfigFile() string {
	return rootify(defaultConfigFilePath, cfg.RootDir)
}

// DBDir returns the full path to the database directory
func (cfg BaseConfig) DBDir() string {
	return rootify(cfg.DBPath, cfg.RootDir)
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg BaseConfig) ValidateBasic() error {
	switch cfg.LogFormat {
	case LogFormatPlain, LogFormatJSON:
	default:
		return errors.New("unknown log_format (must be 'plain' or 'json')")
	}
	switch cfg.DBBackend {
	case "goleveldb", "memdb":
	default:
		return fmt.Errorf("unsupported db_backend %q", cfg.DBBackend)
	}
	return nil
}

//-----------------------------------------------------------------------------
// ConsensusConfig

// ConsensusConfig defines the configuration for the DAG consensus core and
// its leader timeout task.
type ConsensusConfig struct {
	// How long the leader timeout task waits for a round to advance before
	// forcing the core to propose. Read once when the task starts.
	LeaderTimeout time.Duration `mapstructure:"leader_timeout"`

	// Minimum time between two own proposals when not forced.
	MinRoundDelay time.Duration `mapstructure:"min_round_delay"`

	// Maximum number of transactions in a proposed block.
	MaxBlockTxs int `mapstructure:"max_block_txs"`

	// Capacity of the core thread mailbox.
	MailboxSize int `mapstructure:"mailbox_size"`
}

// DefaultConsensusConfig returns a default configuration for the consensus service
func DefaultConsensusConfig() *ConsensusConfig {
	return &ConsensusConfig{
		LeaderTimeout: 250 * time.Millisecond,
		MinRoundDelay: 50 * time.Millisecond,
		MaxBlockTxs:   1000,
		MailboxSize:   32,
	}
}

// TestConsensusConfig returns a configuration for testing the consensus service
func TestConsensusConfig() *ConsensusConfig {
	cfg := DefaultConsensusConfig()
	cfg.LeaderTimeout = 100 * time.Millisecond
	cfg.MinRoundDelay = 10 * time.Millisecond
	cfg.MaxBlockTxs = 100
	return cfg
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *ConsensusConfig) ValidateBasic() error {
	if cfg.LeaderTimeout <= 0 {
		return errors.New("leader_timeout must be positive")
	}
	if cfg.MinRoundDelay < 0 {
		return errors.New("min_round_delay can't be negative")
	}
	if cfg.MinRoundDelay >= cfg.LeaderTimeout {
		return errors.New("min_round_delay must be smaller than leader_timeout")
	}
	if cfg.MaxBlockTxs < 0 {
		return errors.New("max_block_txs can't be negative")
	}
	if cfg.MailboxSize <= 0 {
		return errors.New("mailbox_size must be positive")
	}
	return nil
}

//-----------------------------------------------------------------------------
// MempoolConfig

// MempoolConfig defines the configuration options for the mempool
type MempoolConfig struct {
	// Maximum number of transactions in the mempool
	Size int `mapstructure:"size"`
	// Limit the total size of all txs in the mempool.
	MaxTxsBytes int64 `mapstructure:"max_txs_bytes"`
	// Maximum size of a single transaction
	MaxTxBytes int `mapstructure:"max_tx_bytes"`
}

// DefaultMempoolConfig returns a default configuration for the mempool
func DefaultMempoolConfig() *MempoolConfig {
	return &MempoolConfig{
		Size:        5000,
		MaxTxsBytes: 1024 * 1024 * 1024, // 1GB
		MaxTxBytes:  1024 * 1024,        // 1MB
	}
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *MempoolConfig) ValidateBasic() error {
	if cfg.Size < 0 {
		return errors.New("size can't be negative")
	}
	if cfg.MaxTxsBytes < 0 {
		return errors.New("max_txs_bytes can't be negative")
	}
	if cfg.MaxTxBytes < 0 {
		return errors.New("max_tx_bytes can't be negative")
	}
	return nil
}

//-----------------------------------------------------------------------------
// RPCConfig

// RPCConfig defines the configuration options for the JSON-RPC server
type RPCConfig struct {
	// TCP or UNIX socket address for the RPC server to listen on
	ListenAddress string `mapstructure:"laddr"`

	// Maximum number of simultaneous connections.
	// 0 - unlimited.
	MaxOpenConnections int `mapstructure:"max_open_connections"`
}

// DefaultRPCConfig returns a default configuration for the RPC server
func DefaultRPCConfig() *RPCConfig {
	return &RPCConfig{
		ListenAddress:      "tcp://127.0.0.1:26657",
		MaxOpenConnections: 900,
	}
}

// TestRPCConfig returns a configuration for testing the RPC server
func TestRPCConfig() *RPCConfig {
	cfg := DefaultRPCConfig()
	cfg.ListenAddress = "tcp://127.0.0.1:36657"
	return cfg
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *RPCConfig) ValidateBasic() error {
	if cfg.MaxOpenConnections < 0 {
		return errors.New("max_open_connections can't be negative")
	}
	return nil
}

// IsRPCEnabled returns false when the listen address is empty.
func (cfg *RPCConfig) IsRPCEnabled() bool {
	return cfg.ListenAddress != ""
}

//-----------------------------------------------------------------------------
// InstrumentationConfig

// InstrumentationConfig defines the configuration for metrics reporting.
type InstrumentationConfig struct {
	// When true, Prometheus metrics are served under /metrics on
	// PrometheusListenAddr.
	Prometheus bool `mapstructure:"prometheus"`

	// Address to listen for Prometheus collector(s) connections.
	PrometheusListenAddr string `mapstructure:"prometheus_listen_addr"`

	// Maximum number of simultaneous connections.
	// 0 - unlimited.
	MaxOpenConnections int `mapstructure:"max_open_connections"`

	// Instrumentation namespace.
	Namespace string `mapstructure:"namespace"`
}

// DefaultInstrumentationConfig returns a default configuration for metrics
// reporting.
func DefaultInstrumentationConfig() *InstrumentationConfig {
	return &InstrumentationConfig{
		Prometheus:           false,
		PrometheusListenAddr: ":26660",
		MaxOpenConnections:   3,
		Namespace:            "dagbft",
	}
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *InstrumentationConfig) ValidateBasic() error {
	if cfg.MaxOpenConnections < 0 {
		return errors.New("max_open_connections can't be negative")
	}
	return nil
}

//-----------------------------------------------------------------------------
// Utils

// helper function to make config creation independent of root dir
func rootify(path, root string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

var defaultMoniker = getDefaultMoniker()

// getDefaultMoniker returns a default moniker, which is the host name. If
// runtime fails to get the host name, "anonymous" will be returned.
func getDefaultMoniker() string {
	moniker, err := os.Hostname()
	if err != nil {
		moniker = "anonymous"
	}
	return moniker
}

// EnsureRoot creates the root, config, and data directories if they don't
// exist, and panics if it fails.
func EnsureRoot(rootDir string) {
	if err := tmos.EnsureDir(rootDir, 0700); err != nil {
		panic(err.Error())
	}
	if err := tmos.EnsureDir(filepath.Join(rootDir, defaultConfigDir), 0700); err != nil {
		panic(err.Error())
	}
	if err := tmos.EnsureDir(filepath.Join(rootDir, defaultDataDir), 0700); err != nil {
		panic(err.Error())
	}
}
