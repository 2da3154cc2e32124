package config

import (
	"github.com/spf13/viper"

	"github.com/tesserachain/tessera/pkg/consensus"
)

type Consensus struct {
	Params *consensus.Params
}

const (
	Cfg_consensus_minStake        = "consensus.minStake"
	Cfg_consensus_minValidators   = "consensus.minValidators"
	Cfg_consensus_baseBlockReward = "consensus.baseBlockReward"
	Cfg_consensus_activityWindow  = "consensus.activityWindow"
	Cfg_consensus_minReputation   = "consensus.minReputation"
	Cfg_consensus_propagationSLA  = "consensus.propagationSLA"
)

var (
	consensusDefaults = map[string]interface{}{
		Cfg_consensus_minStake:        500000,
		Cfg_consensus_minValidators:   1,
		Cfg_consensus_baseBlockReward: 50,
		Cfg_consensus_activityWindow:  "24h",
		Cfg_consensus_minReputation:   50,
		Cfg_consensus_propagationSLA:  "30s",
	}
)

func init() {
	for k, v := range consensusDefaults {
		viper.SetDefault(k, v)
	}
}

func buildConsensusConfig() (*Consensus, error) {
	p := consensus.DefaultParams()

	p.MinStake = viper.GetUint64(Cfg_consensus_minStake)
	p.MinValidators = viper.GetInt(Cfg_consensus_minValidators)
	p.BaseBlockReward = viper.GetUint64(Cfg_consensus_baseBlockReward)
	p.ActivityWindow = viper.GetDuration(Cfg_consensus_activityWindow)
	p.MinReputation = viper.GetInt(Cfg_consensus_minReputation)
	p.PropagationSLA = viper.GetDuration(Cfg_consensus_propagationSLA)

	return &Consensus{Params: p}, nil
}
