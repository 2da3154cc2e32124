package config

import (
	"encoding/base64"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/tesserachain/tessera/pkg/chain"
)

// Genesis describes the network bootstrap: a chain identity plus the
// validator set admitted at launch. It travels base64-msgpack encoded in the
// config file; scripts/gengen produces it.
type Genesis struct {
	ChainID    string             `msgpack:"c"`
	Validators []GenesisValidator `msgpack:"v"`
}

type GenesisValidator struct {
	Address   string `msgpack:"a"`
	Stake     uint64 `msgpack:"s"`
	PublicKey []byte `msgpack:"pk"`
}

type Chain struct {
	Params  *chain.Params
	Genesis *Genesis
}

const (
	Cfg_chain_blockInterval      = "chain.blockInterval"
	Cfg_chain_adjustmentInterval = "chain.adjustmentInterval"
	Cfg_chain_minDifficulty      = "chain.minDifficulty"
	Cfg_chain_maxDifficulty      = "chain.maxDifficulty"
	Cfg_chain_genesisInfo        = "chain.genesis"
)

var (
	chainDefaults = map[string]interface{}{
		Cfg_chain_blockInterval:      "10s",
		Cfg_chain_adjustmentInterval: 10,
		Cfg_chain_minDifficulty:      2,
		Cfg_chain_maxDifficulty:      12,
		Cfg_chain_genesisInfo:        "",
	}
)

func init() {
	for k, v := range chainDefaults {
		viper.SetDefault(k, v)
	}
}

func buildChainConfig() (*Chain, error) {
	p := chain.DefaultParams()

	if d := viper.GetDuration(Cfg_chain_blockInterval); d > time.Duration(0) {
		p.BlockInterval = d
	}
	p.DifficultyAdjustmentInterval = viper.GetInt(Cfg_chain_adjustmentInterval)
	p.MinDifficulty = viper.GetInt(Cfg_chain_minDifficulty)
	p.MaxDifficulty = viper.GetInt(Cfg_chain_maxDifficulty)

	c := &Chain{Params: p}

	gcfg := viper.GetString(Cfg_chain_genesisInfo)
	if gcfg == "" {
		return c, nil
	}

	gcfg_raw, err := base64.StdEncoding.DecodeString(gcfg)
	if err != nil {
		return nil, errors.Wrap(err, "b64 decoding genesis config")
	}

	c.Genesis = &Genesis{}
	if err := msgpack.Unmarshal(gcfg_raw, c.Genesis); err != nil {
		return nil, errors.Wrap(err, "unmarshaling genesis info")
	}

	return c, nil
}
