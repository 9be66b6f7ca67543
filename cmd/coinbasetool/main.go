// coinbasetool compresses a serialized bitcoin coinbase transaction the way
// the miner server stores it in mined blocks. It exists so that external
// verification tooling can reproduce the stored form of a coinbase.
package main

import (
	"encoding/hex"
	"fmt"
	"os"

	flags "github.com/jessevdk/go-flags"

	"github.com/emberchain/emberd/mining"
)

type options struct {
	File            string `short:"f" long:"file" description:"Read the hex encoded coinbase transaction from a file instead of the argument"`
	FirstOccurrence bool   `long:"firstoccurrence" description:"Anchor the layout at the first occurrence of the merged mining tag instead of the last"`
	Args            struct {
		CoinbaseHex string `positional-arg-name:"coinbase-hex"`
	} `positional-args:"yes"`
}

func main() {
	opts := &options{}
	parser := flags.NewParser(opts, flags.HelpFlag)
	_, err := parser.Parse()
	if err != nil {
		printErrorAndExit(err)
	}

	coinbaseHex := opts.Args.CoinbaseHex
	if opts.File != "" {
		raw, err := os.ReadFile(opts.File)
		if err != nil {
			printErrorAndExit(err)
		}
		coinbaseHex = string(raw)
	}
	if coinbaseHex == "" {
		printErrorAndExit(fmt.Errorf("no coinbase transaction given; pass it as an argument or with --file"))
	}

	coinbaseTx, err := hex.DecodeString(trimWhitespace(coinbaseHex))
	if err != nil {
		printErrorAndExit(err)
	}

	compressed, err := mining.CompressCoinbaseWithTagPosition(coinbaseTx, !opts.FirstOccurrence)
	if err != nil {
		printErrorAndExit(err)
	}
	fmt.Println(hex.EncodeToString(compressed))
}

func trimWhitespace(s string) string {
	trimmed := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\r', '\n':
		default:
			trimmed = append(trimmed, s[i])
		}
	}
	return string(trimmed)
}

func printErrorAndExit(err error) {
	fmt.Fprintf(os.Stderr, "coinbasetool: %s\n", err)
	os.Exit(1)
}
