package node

import (
	"context"
	"crypto/rand"
	"os"
	"path/filepath"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/pkg/errors"

	"github.com/tesserachain/tessera/internal/config"
	"github.com/tesserachain/tessera/internal/utils/logging"
	"github.com/tesserachain/tessera/pkg/cryptography"
)

func defaultKeyPath(name string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "resolving home dir")
	}

	return filepath.Join(home, ".tessera", name), nil
}

func getIdentity(ctx context.Context, cfg *config.Config) (libp2p.Option, error) {
	id := cfg.P2P().IdentityFile
	if id == "" {
		var err error
		id, err = defaultKeyPath("p2p.key")
		if err != nil {
			return nil, err
		}
	}

	_, err := os.Stat(id)
	if errors.Is(err, os.ErrNotExist) {
		if err := generateIdentity(ctx, id); err != nil {
			return nil, errors.Wrap(err, "creating new identity")
		}
	} else if err != nil {
		return nil, errors.Wrap(err, "checking identity file")
	} else {
		logging.Entry().Debug("using existing Ed25519 identity")
	}

	idB, err := os.ReadFile(id)
	if err != nil {
		return nil, errors.Wrap(err, "reading identity file")
	}

	priv, err := crypto.UnmarshalPrivateKey(idB)
	if err != nil {
		return nil, errors.Wrap(err, "unmarshaling private key")
	}

	return libp2p.Identity(priv), nil
}

func generateIdentity(ctx context.Context, path string) error {
	logging.Entry().Debug("creating a new Ed25519 identity")
	priv, _, err := crypto.GenerateKeyPairWithReader(crypto.Ed25519, 0, rand.Reader)
	if err != nil {
		return errors.Wrap(err, "generating priv key")
	}

	b, err := crypto.MarshalPrivateKey(priv)
	if err != nil {
		return errors.Wrap(err, "marshaling new private key")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return errors.Wrap(err, "creating identity dir")
	}

	return os.WriteFile(path, b, 0600)
}

// LoadOrCreateWalletKey returns the node's ML-DSA signing key, generating a
// fresh one on first run. The key is stored multibase encoded.
func LoadOrCreateWalletKey(path string) (*cryptography.PrivateKey, error) {
	if path == "" {
		var err error
		path, err = defaultKeyPath("wallet.key")
		if err != nil {
			return nil, err
		}
	}

	d, err := os.ReadFile(path)
	if err == nil {
		raw, err := cryptography.DecodeMultibase(string(d))
		if err != nil {
			return nil, errors.Wrap(err, "decoding wallet key")
		}

		return cryptography.PrivateKeyFromBytes(raw)
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrap(err, "reading wallet key")
	}

	logging.Entry().Debug("creating a new ML-DSA wallet key")

	_, sk, err := cryptography.GenerateKeyPair()
	if err != nil {
		return nil, err
	}

	raw, err := sk.Bytes()
	if err != nil {
		return nil, errors.Wrap(err, "encoding wallet key")
	}

	enc, err := cryptography.EncodeMultibase(raw)
	if err != nil {
		return nil, errors.Wrap(err, "multibase encoding wallet key")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, errors.Wrap(err, "creating wallet dir")
	}
	if err := os.WriteFile(path, []byte(enc), 0600); err != nil {
		return nil, errors.Wrap(err, "writing wallet key")
	}

	return sk, nil
}
