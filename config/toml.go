package config

import (
	"io/ioutil"

	"github.com/spf13/viper"
)

// WriteConfigFile renders config to configFilePath as toml. Durations are
// written as strings so viper can read them back.
func WriteConfigFile(configFilePath string, config *Config) error {
	v := viper.New()
	for key, value := range configValues(config) {
		v.Set(key, value)
	}
	return v.WriteConfigAs(configFilePath)
}

func configValues(config *Config) map[string]interface{} {
	return map[string]interface{}{
		"moniker":                 config.Moniker,
		"db_backend":              config.DBBackend,
		"db_dir":                  config.DBPath,
		"log_level":               config.LogLevel,
		"log_format":              config.LogFormat,
		"committee_file":          config.Committee,
		"priv_validator_key_file": config.PrivValidatorKey,

		"consensus.leader_timeout":  config.Consensus.LeaderTimeout.String(),
		"consensus.min_round_delay": config.Consensus.MinRoundDelay.String(),
		"consensus.max_block_txs":   config.Consensus.MaxBlockTxs,
		"consensus.mailbox_size":    config.Consensus.MailboxSize,

		"mempool.size":          config.Mempool.Size,
		"mempool.max_txs_bytes": config.Mempool.MaxTxsBytes,
		"mempool.max_tx_bytes":  config.Mempool.MaxTxBytes,

		"rpc.laddr":                config.RPC.ListenAddress,
		"rpc.max_open_connections": config.RPC.MaxOpenConnections,

		"instrumentation.prometheus":             config.Instrumentation.Prometheus,
		"instrumentation.prometheus_listen_addr": config.Instrumentation.PrometheusListenAddr,
		"instrumentation.max_open_connections":   config.Instrumentation.MaxOpenConnections,
		"instrumentation.namespace":              config.Instrumentation.Namespace,
	}
}

// ResetTestRoot creates a fresh root directory with a test config.
func ResetTestRoot(testName string) *Config {
	rootDir, err := ioutil.TempDir("", testName)
	if err != nil {
		panic(err)
	}
	EnsureRoot(rootDir)

	config := TestConfig().SetRoot(rootDir)
	if err := WriteConfigFile(config.ConfigFile(), config); err != nil {
		panic(err)
	}
	return config
}
