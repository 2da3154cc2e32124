package config

import (
	"github.com/spf13/viper"
)

type Wallet struct {
	// KeyFile holds the node's ML-DSA signing key. Empty means
	// $HOME/.tessera/wallet.key.
	KeyFile string
}

const (
	Cfg_wallet_keyFile = "wallet.keyFile"
)

var (
	walletDefaults = map[string]interface{}{
		Cfg_wallet_keyFile: "",
	}
)

func init() {
	for k, v := range walletDefaults {
		viper.SetDefault(k, v)
	}
}

func buildWalletConfig() *Wallet {
	return &Wallet{
		KeyFile: viper.GetString(Cfg_wallet_keyFile),
	}
}
