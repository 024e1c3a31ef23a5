// Command bme280-read reads a BME280 directly, without the HAL service.
//
//	bme280-read -bus /dev/i2c-1 -addr 0x76 -n 5 -interval 1s
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"syscall"
	"time"

	"bme280-go/drivers/bme280"
	"bme280-go/services/hal"
	"bme280-go/types"

	logger "github.com/d2r2/go-logger"
	shell "github.com/d2r2/go-shell"
)

var lg = logger.NewPackageLogger("main", logger.InfoLevel)

func main() {
	defer logger.FinalizeLogger()

	var (
		driver   = flag.String("driver", "periph", "bus driver: periph, smbus, goi2c or sim")
		name     = flag.String("bus", "", "periph bus name, e.g. /dev/i2c-1 (empty picks the first)")
		number   = flag.Int("number", 1, "bus number for smbus and goi2c")
		addr     = flag.Uint("addr", bme280.AddressPrimary, "sensor address, 0x76 or 0x77")
		count    = flag.Int("n", 1, "readings to take, 0 for no limit")
		interval = flag.Duration("interval", time.Second, "delay between readings")
		verbose  = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	if *verbose {
		logger.ChangePackageLogLevel("main", logger.DebugLevel)
		logger.ChangePackageLogLevel("bme280", logger.DebugLevel)
		logger.ChangePackageLogLevel("platform", logger.DebugLevel)
	}

	if err := run(*driver, *name, *number, uint16(*addr), *count, *interval); err != nil {
		lg.Error(err)
		logger.FinalizeLogger()
		os.Exit(1)
	}
}

func run(driver, name string, number int, addr uint16, count int, interval time.Duration) error {
	i2c, closeBus, err := hal.OpenBus(types.BusConfig{Driver: driver, Name: name, Number: number})
	if err != nil {
		return err
	}
	defer func() {
		if err := closeBus(); err != nil {
			lg.Errorf("close bus: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	defer close(done)
	signals := []os.Signal{os.Kill, os.Interrupt}
	if shell.IsLinuxMacOSFreeBSD() {
		signals = append(signals, syscall.SIGTERM)
	}
	shell.CloseContextOnSignals(cancel, done, signals...)

	d := bme280.New(i2c, bme280.Config{Address: addr})
	if err := d.Initialize(); err != nil {
		return err
	}
	lg.Debugf("calibration loaded, state %s", d.State())

	for i := 0; count == 0 || i < count; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(interval):
			}
		}
		r, err := d.ReadSample()
		if err != nil {
			return err
		}
		e := r.Env()
		fmt.Printf("%s  T=%s  P=%s  RH=%s\n", time.Now().Format("15:04:05"), e.Temperature, e.Pressure, e.Humidity)
	}
	return nil
}
