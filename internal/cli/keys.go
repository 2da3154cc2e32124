package cli

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tesserachain/tessera/internal/config"
	"github.com/tesserachain/tessera/internal/node"
	"github.com/tesserachain/tessera/pkg/cryptography"
)

var (
	keysCmd = &cobra.Command{
		Use:   "keys",
		Short: "manage the node wallet key",
		RunE:  runKeys,
	}
)

func runKeys(cmd *cobra.Command, args []string) error {
	sk, err := node.LoadOrCreateWalletKey(viper.GetString(config.Cfg_wallet_keyFile))
	if err != nil {
		return errors.Wrap(err, "loading wallet key")
	}

	pub, err := sk.Public().Bytes()
	if err != nil {
		return errors.Wrap(err, "encoding public key")
	}

	enc, err := cryptography.EncodeMultibase(pub)
	if err != nil {
		return errors.Wrap(err, "multibase encoding public key")
	}

	fmt.Printf("address:   %s\n", cryptography.AddressFromPublicKey(pub))
	fmt.Printf("publicKey: %s\n", enc)

	return nil
}
