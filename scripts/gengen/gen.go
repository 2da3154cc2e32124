// gengen builds the base64 genesis blob referenced by chain.genesis in the
// node config. It reads a YAML description of the launch validator set and
// prints the encoded config; validators without a key get a fresh ML-DSA
// pair, with the private half printed for the operator to keep.
package main

import (
	"encoding/base64"
	"fmt"
	"os"

	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"

	"github.com/tesserachain/tessera/internal/config"
	"github.com/tesserachain/tessera/pkg/cryptography"
)

type specValidator struct {
	Address   string `yaml:"address"`
	PublicKey string `yaml:"publicKey"`
	Stake     uint64 `yaml:"stake"`
}

type genesisSpec struct {
	ChainID    string          `yaml:"chainId"`
	Validators []specValidator `yaml:"validators"`
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <genesis.yaml>\n", os.Args[0])
		os.Exit(1)
	}

	raw, err := os.ReadFile(os.Args[1])
	if err != nil {
		panic(err)
	}

	spec := &genesisSpec{}
	if err := yaml.Unmarshal(raw, spec); err != nil {
		panic(err)
	}

	if spec.ChainID == "" {
		spec.ChainID = "testnet"
	}

	g := &config.Genesis{ChainID: spec.ChainID}

	for i, sv := range spec.Validators {
		var pub []byte

		if sv.PublicKey != "" {
			pub, err = cryptography.DecodeMultibase(sv.PublicKey)
			if err != nil {
				panic(err)
			}
		} else {
			pk, sk, err := cryptography.GenerateKeyPair()
			if err != nil {
				panic(err)
			}

			pub, err = pk.Bytes()
			if err != nil {
				panic(err)
			}

			skRaw, err := sk.Bytes()
			if err != nil {
				panic(err)
			}

			skEnc, err := cryptography.EncodeMultibase(skRaw)
			if err != nil {
				panic(err)
			}

			fmt.Printf("validator %d private key (keep safe):\n%s\n\n", i, skEnc)
		}

		addr := sv.Address
		if addr == "" {
			addr = cryptography.AddressFromPublicKey(pub)
		}

		g.Validators = append(g.Validators, config.GenesisValidator{
			Address:   addr,
			Stake:     sv.Stake,
			PublicKey: pub,
		})
	}

	b, err := msgpack.Marshal(g)
	if err != nil {
		panic(err)
	}

	b64 := base64.StdEncoding.EncodeToString(b)

	fmt.Printf("Genesis Config:\n%s\n", b64)
}
