package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"toolkiosk/app"
	"toolkiosk/bridge"
	"toolkiosk/bus"
)

// The bridge runs as its own process next to the backend: it owns the
// serial device (or the simulator) and nothing else touches hardware.
func main() {
	cfg := app.LoadConfig()
	logger := app.MustLogger()
	defer logger.Sync()

	b, err := bus.Connect(cfg.MQTTHost, cfg.MQTTPort, "toolkiosk-bridge", logger)
	if err != nil {
		log.Fatalf("mqtt: %v", err)
	}
	defer b.Close()

	brCfg := bridge.Config{
		AckTimeout:  cfg.AckTimeout,
		DoneTimeout: cfg.DoneTimeout,
		DedupTTL:    cfg.DedupTTL,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var br *bridge.Bridge
	switch cfg.BridgeMode {
	case app.ModeSerial:
		dev, err := bridge.OpenSerial(cfg.SerialDevice, cfg.SerialBaud)
		if err != nil {
			log.Fatalf("serial open %s: %v", cfg.SerialDevice, err)
		}
		defer dev.Close()

		switch cfg.SerialFraming {
		case app.FramingCBOR:
			br = bridge.New(brCfg, b, bridge.NewFramePort(dev, logger), logger)
			go bridge.ReadFrames(ctx, dev, br.HandleReply, logger)
		default:
			br = bridge.New(brCfg, b, bridge.NewLinePort(dev, logger), logger)
			go bridge.ReadLines(ctx, dev, br.HandleReply, logger)
		}
		logger.Infow("bridge started", "mode", cfg.BridgeMode, "device", cfg.SerialDevice, "framing", cfg.SerialFraming)

	default:
		br = bridge.NewSimulated(brCfg, bridge.SimConfig{
			FailRate: cfg.SimFailRate,
			MinCycle: cfg.SimMinCycle,
			MaxCycle: cfg.SimMaxCycle,
			AckDelay: cfg.SimAckDelay,
		}, b, logger)
		logger.Infow("bridge started", "mode", app.ModeSim, "fail_rate", cfg.SimFailRate)
	}
	defer br.Close()

	if err := b.Subscribe(br.Handlers()); err != nil {
		log.Fatalf("subscribe: %v", err)
	}

	<-ctx.Done()
	logger.Infow("bridge shutting down")
}
