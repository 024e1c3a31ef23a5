// Command bme280-go runs the sensor daemon: the embedded config is published
// on the bus, the HAL reads the sensors it names, and the bridge, recorder and
// heartbeat services consume the readings.
package main

import (
	"context"
	"flag"
	"os"
	"syscall"

	"bme280-go/bus"
	"bme280-go/services/bridge"
	"bme280-go/services/config"
	"bme280-go/services/hal"
	"bme280-go/services/heartbeat"
	"bme280-go/services/recorder"

	logger "github.com/d2r2/go-logger"
	shell "github.com/d2r2/go-shell"
	"golang.org/x/sync/errgroup"
)

var lg = logger.NewPackageLogger("main", logger.InfoLevel)

func main() {
	defer logger.FinalizeLogger()

	device := flag.String("device", "sim", "embedded config to publish")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	if *verbose {
		for _, pkg := range []string{"main", "hal", "worker", "bme280", "bridge", "recorder"} {
			logger.ChangePackageLogLevel(pkg, logger.DebugLevel)
		}
	}

	ctx, cancel := context.WithCancel(context.WithValue(context.Background(), config.CtxDeviceKey, *device))
	defer cancel()
	done := make(chan struct{})
	defer close(done)
	signals := []os.Signal{os.Kill, os.Interrupt}
	if shell.IsLinuxMacOSFreeBSD() {
		signals = append(signals, syscall.SIGTERM)
	}
	shell.CloseContextOnSignals(cancel, done, signals...)

	b := bus.NewBus(16)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return hal.Run(ctx, b.NewConnection("hal")) })
	g.Go(func() error { bridge.Start(ctx, b.NewConnection("bridge")); return nil })
	g.Go(func() error { return recorder.New(b.NewConnection("recorder")).Run(ctx) })
	if err := (&heartbeat.Service{}).Start(ctx, b.NewConnection("heartbeat")); err != nil {
		lg.Fatal(err)
	}
	g.Go(func() error { monitor(ctx, b.NewConnection("monitor")); return nil })

	// Services subscribe first; config is retained either way.
	config.NewConfigService().Start(ctx, b.NewConnection("config"))

	lg.Infof("running with config %q", *device)
	if err := g.Wait(); err != nil {
		lg.Error(err)
		logger.FinalizeLogger()
		os.Exit(1)
	}
	lg.Info("stopped")
}

// monitor logs HAL state changes and, at debug level, every value.
func monitor(ctx context.Context, conn *bus.Connection) {
	sub := conn.Subscribe(bus.T("hal", bus.Multi))
	defer conn.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-sub.Channel():
			if len(m.Topic) == 2 {
				lg.Infof("%s: %+v", m.Topic, m.Payload)
				continue
			}
			lg.Debugf("%s: %+v", m.Topic, m.Payload)
		}
	}
}
