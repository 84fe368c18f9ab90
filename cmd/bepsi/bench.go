package main

import (
	"context"
	"fmt"
	"os"

	bepsi "github.com/dctrlwtf/bepsi/pkg"
	"github.com/dctrlwtf/bepsi/pkg/benchmark"
	"github.com/dctrlwtf/bepsi/pkg/rails/spark"
)

// Bench measures payment detection latency against real Spark wallets.
// It needs a funded test wallet and the pin 516 wallet from the server
// config, plus TEST_WALLET_MNEMONIC / TEST_WALLET_ADDRESS in the
// environment.
func Bench(conf bepsi.Config, strategy benchmark.Strategy, payments int) {
	testMnemonic := os.Getenv("TEST_WALLET_MNEMONIC")
	if testMnemonic == "" {
		fmt.Println("TEST_WALLET_MNEMONIC is required")
		os.Exit(1)
	}
	if len(conf.Spark.Pins) == 0 {
		fmt.Println("no spark pins configured")
		os.Exit(1)
	}
	pin := conf.Spark.Pins[0]

	bench := benchmark.Config{
		Payments:     payments,
		TestMnemonic: testMnemonic,
		PinAddress:   pin.Address,
		PinMnemonic:  pin.Mnemonic,
		SatsAmount:   pin.Sats,
	}
	if len(conf.Spark.Tokens) > 0 {
		bench.TokenID = conf.Spark.Tokens[0].Identifier
		bench.TokenDecimals = conf.Spark.Tokens[0].Decimals
	}

	opener := spark.NewBridgeOpener(conf.Spark.BridgeURL)
	ctx := context.Background()

	if testAddress := os.Getenv("TEST_WALLET_ADDRESS"); testAddress != "" {
		fmt.Println("sweeping stuck funds back to the test wallet...")
		swept := benchmark.PreSweep(ctx, opener, conf.Spark.Pins, testAddress, os.Stdout)
		fmt.Printf("swept %d sats\n", swept)
	}

	h := benchmark.New(opener, bench, os.Stdout)
	if _, err := h.Run(ctx, strategy); err != nil {
		fmt.Println("benchmark failed: ", err)
		os.Exit(1)
	}
}
