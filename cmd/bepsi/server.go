package main

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	bepsi "github.com/dctrlwtf/bepsi/pkg"
	"github.com/dctrlwtf/bepsi/pkg/conductor"
	"github.com/dctrlwtf/bepsi/pkg/machine"
	"github.com/dctrlwtf/bepsi/pkg/rails/discord"
	"github.com/dctrlwtf/bepsi/pkg/rails/evm"
	"github.com/dctrlwtf/bepsi/pkg/rails/socket"
	"github.com/dctrlwtf/bepsi/pkg/rails/solana"
	"github.com/dctrlwtf/bepsi/pkg/rails/spark"
	"github.com/dctrlwtf/bepsi/pkg/receivers"
	"github.com/dctrlwtf/bepsi/pkg/recorder"
	"github.com/dctrlwtf/bepsi/pkg/webapi"
)

func Server(conf bepsi.Config) {
	disabled, err := conf.Validate()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	for _, d := range disabled {
		log.Printf("Rail %s disabled, missing: %s", d.Rail, strings.Join(d.Missing, ", "))
	}

	c := conductor.NewConductor(
		conductor.HookSignals(),
		conductor.Noisy(),
	)

	// Start the MessageBus Service
	bus := bepsi.NewMessageBus()
	c.Service("MessageBus", bus)

	// Set up all configured log receivers
	receivers.SetupLoggers(c, bus, conf)

	// The physical machine behind a process-wide dispense gate
	pulse := time.Duration(conf.Machine.PulseMs) * time.Millisecond
	disp := machine.NewDispenser(machine.SysfsDriver{}, pulse)

	// Sale recorders: NocoDB plus the local journal
	journal, err := recorder.NewJournal(conf.Machine.JournalDB)
	if err != nil {
		panic(err)
	}
	defer journal.Close()
	noco := recorder.NewNocoDB(conf.Recorder.URL, conf.Recorder.Token)

	vm := bepsi.NewVendingMachine(conf.Slots(), disp, bus, noco, journal)

	// Kiosk surface: SSE payment feed, QR codes, health
	api := webapi.NewWebAPI(conf)
	bus.Register(api, bepsi.EVENT_PAY("PAY"))
	c.Service("Web API", api)

	// Payment rails, each one optional
	startRail(c, conf, bepsi.RailSpark, func() (conductor.Service, error) {
		opener := spark.NewBridgeOpener(conf.Spark.BridgeURL)
		return spark.NewObserver(conf, opener, vm), nil
	})
	startRail(c, conf, bepsi.RailEVM, func() (conductor.Service, error) {
		return evm.NewObserver(conf, vm), nil
	})
	startRail(c, conf, bepsi.RailSolana, func() (conductor.Service, error) {
		o, err := solana.NewObserver(conf, vm)
		if err != nil {
			return nil, err
		}
		return o, nil
	})
	startRail(c, conf, bepsi.RailArkade, func() (conductor.Service, error) {
		return socket.NewArkade(conf, vm), nil
	})
	startRail(c, conf, bepsi.RailLightning, func() (conductor.Service, error) {
		return socket.NewLightning(conf, vm), nil
	})
	startRail(c, conf, bepsi.RailDiscord, func() (conductor.Service, error) {
		return discord.NewObserver(conf, vm), nil
	})

	bus.Send(bepsi.SYS_STARTUP, "bepsi starting up")

	<-c.Start()
}

func startRail(c *conductor.Conductor, conf bepsi.Config, rail string, build func() (conductor.Service, error)) {
	if !conf.RailEnabled(rail) {
		log.Printf("Rail %s not starting", rail)
		return
	}
	svc, err := build()
	if err != nil {
		log.Printf("Rail %s failed to initialize: %v", rail, err)
		return
	}
	c.Service(fmt.Sprintf("%s rail", rail), svc)
}
