package config

import (
	"github.com/spf13/viper"

	"github.com/tesserachain/tessera/pkg/shard"
)

type Sharding struct {
	Enabled bool
	Params  *shard.Params
}

const (
	Cfg_shard_enabled       = "shard.enabled"
	Cfg_shard_total         = "shard.total"
	Cfg_shard_minValidators = "shard.minValidators"
	Cfg_shard_threshold     = "shard.threshold"
)

var (
	shardDefaults = map[string]interface{}{
		Cfg_shard_enabled:       false,
		Cfg_shard_total:         4,
		Cfg_shard_minValidators: 1,
		Cfg_shard_threshold:     0.67,
	}
)

func init() {
	for k, v := range shardDefaults {
		viper.SetDefault(k, v)
	}
}

func buildShardConfig() (*Sharding, error) {
	p := shard.DefaultParams()

	p.TotalShards = viper.GetInt(Cfg_shard_total)
	p.MinValidatorsPerShard = viper.GetInt(Cfg_shard_minValidators)
	p.ConsensusThreshold = viper.GetFloat64(Cfg_shard_threshold)

	return &Sharding{
		Enabled: viper.GetBool(Cfg_shard_enabled),
		Params:  p,
	}, nil
}
