package node

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"strings"

	drandchain "github.com/drand/drand/chain"
	"github.com/drand/drand/client"
	"github.com/drand/drand/client/http"
	"github.com/drand/drand/log"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tesserachain/tessera/internal/utils/logging"
)

// The drand league-of-entropy mainnet provides publicly verifiable
// randomness every 30 seconds; rounds pace mining attempts between local
// block-interval ticks.
var urls = []string{
	"https://api.drand.sh",
	"https://api2.drand.sh",
	"https://api3.drand.sh",
	"https://drand.cloudflare.com",
}

var (
	drandChainInfo = `{
		"public_key":"868f005eb8e6e4ca0a47c8a77ceaa5309a47978a7c71bc5cce96366b5d7a569937c529eeda66c7293784a9402801af31",
		"period":30,
		"genesis_time":1595431050,
		"hash":"8990e7a9aaed2ffed73dbd7092123d6f289930540d7651336225dc172e51b2ce",
		"groupHash":"176f93498eac9ca337150b46d21dd58673ea4e3581185f869672e59fa4cb390a"
	}`

	drandHash, _ = hex.DecodeString("8990e7a9aaed2ffed73dbd7092123d6f289930540d7651336225dc172e51b2ce")
)

func newDrandClient() (client.Client, error) {
	logger := log.NewKitLoggerFrom(log.LoggerTo(logging.Entry().WithField("component", "drand").WriterLevel(logrus.DebugLevel)))

	cinfo, err := drandchain.InfoFromJSON(strings.NewReader(drandChainInfo))
	if err != nil {
		return nil, errors.Wrap(err, "reading chain info")
	}

	c, err := client.New(
		client.WithChainInfo(cinfo),
		client.WithAutoWatch(),
		client.WithLogger(logger),
		client.From(http.ForURLs(urls, drandHash)...),
	)
	if err != nil {
		return nil, errors.Wrap(err, "constructing drand client")
	}

	logging.Entry().Info("drand client initiated successfully")

	return c, nil
}

// watchBeacon folds each beacon round's randomness into a uint64 stream.
// Slow consumers drop rounds rather than stalling the watcher.
func watchBeacon(ctx context.Context, c client.Client) <-chan uint64 {
	dst := make(chan uint64)

	go func() {
		defer close(dst)

		for b := range c.Watch(ctx) {
			randomness := b.Randomness()
			if len(randomness) < 8 {
				continue
			}

			select {
			case dst <- binary.BigEndian.Uint64(randomness):
			default:
			}
		}
	}()

	return dst
}
