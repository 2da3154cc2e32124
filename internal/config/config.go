package config

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

var (
	defaults = map[string]interface{}{
		"verbose": false,
	}
)

func init() {
	for k, v := range defaults {
		viper.SetDefault(k, v)
	}
}

func GetConfig() (*Config, error) {
	viper.SetConfigType("yaml")
	viper.SetConfigName("tessera")
	viper.AddConfigPath("/etc/tessera/")
	viper.AddConfigPath("$HOME/.tessera")
	viper.AddConfigPath(".")
	viper.SetEnvPrefix("TESSERA")
	viper.AutomaticEnv()
	err := viper.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; ignore error
			logrus.New().Warnf("no config found")
		} else {
			return nil, errors.Wrap(err, "reading config file")
		}
	}

	c := &Config{}

	c.p2p, err = buildP2PConfig()
	if err != nil {
		return nil, errors.Wrap(err, "p2p config")
	}

	c.chain, err = buildChainConfig()
	if err != nil {
		return nil, errors.Wrap(err, "chain config")
	}

	c.consensus, err = buildConsensusConfig()
	if err != nil {
		return nil, errors.Wrap(err, "consensus config")
	}

	c.shard, err = buildShardConfig()
	if err != nil {
		return nil, errors.Wrap(err, "shard config")
	}

	c.storage = buildStorageConfig()
	c.wallet = buildWalletConfig()

	if viper.GetBool("verbose") {
		logrus.SetLevel(logrus.DebugLevel)
		logrus.WithField("level", "debug").Debug("setting log level")
	}

	return c, nil
}

type Config struct {
	p2p       *P2P
	chain     *Chain
	consensus *Consensus
	shard     *Sharding
	storage   *Storage
	wallet    *Wallet
}

func (c *Config) P2P() *P2P {
	return c.p2p
}

func (c *Config) Chain() *Chain {
	return c.chain
}

func (c *Config) Consensus() *Consensus {
	return c.consensus
}

func (c *Config) Sharding() *Sharding {
	return c.shard
}

func (c *Config) Storage() *Storage {
	return c.storage
}

func (c *Config) Wallet() *Wallet {
	return c.wallet
}
