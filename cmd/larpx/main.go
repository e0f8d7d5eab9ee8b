// Command larpx launches joke tokens through a launch aggregator and serves
// the gallery and scan log to the browser client.
//
// Usage:
//
//	larpx serve --http-addr :8080
//	larpx launch --keypair ~/.config/solana/id.json --image art.png --name ... --symbol ...
//	larpx launch --keypair id.json --threat random
//	larpx migrate
//	larpx threats --sample 3
//
// Settings resolve from flags, then LARPX_* environment variables, then the
// optional --config file.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
