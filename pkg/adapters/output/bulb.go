package output

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/lokutor-ai/lokutor-orchestrator/pkg/adapter"
	"github.com/lokutor-ai/lokutor-orchestrator/pkg/adapters/cfgutil"
	"github.com/lokutor-ai/lokutor-orchestrator/pkg/core"
)

// BulbPort is the narrow surface Bulb needs from a single smart bulb,
// kept separate from tapoDevice so tests can swap in a recording fake.
type BulbPort interface {
	TurnOn() error
	TurnOff() error
}

func (d *tapoDevice) TurnOn() error  { return d.setDeviceOn(true) }
func (d *tapoDevice) TurnOff() error { return d.setDeviceOn(false) }

// Bulb drives named Tapo smart bulbs in response to LightOnOutput/
// LightOffOutput events, grounded on tapo_output.py's TapoOutput:
// event content is a target name ("stanza", "ingresso", or "tutto"
// for every configured device).
type Bulb struct {
	*base

	mu      sync.Mutex
	devices map[string]BulbPort
}

// NewBulb builds a Bulb output adapter. devices maps a logical name
// (room) to its BulbPort.
func NewBulb(name string, queueSize int, devices map[string]BulbPort, logger core.Logger) *Bulb {
	b := &Bulb{devices: devices}
	b.base = newBase(name, queueSize, logger, b.handle)
	return b
}

// BuildBulb is the factory.OutputBuilder for implementation "bulb".
// Credentials come from TAPO_EMAIL/TAPO_PASSWORD, matching the
// original's environment-variable convention.
func BuildBulb(logger core.Logger) adapter.OutputBuilder {
	return func(name string, cfg map[string]any) (adapter.OutputAdapter, error) {
		queueSize := cfgutil.Int(cfg, "queue_maxsize", 50)
		email := os.Getenv("TAPO_EMAIL")
		password := os.Getenv("TAPO_PASSWORD")
		ips := cfgutil.StringMap(cfg, "devices")

		devices := make(map[string]BulbPort, len(ips))
		for deviceName, ip := range ips {
			if email == "" || password == "" {
				logger.Warn("bulb: TAPO_EMAIL/TAPO_PASSWORD not set, device will fail to authenticate", "device", deviceName)
			}
			devices[deviceName] = newTapoDevice(ip, email, password)
		}
		return NewBulb(name, queueSize, devices, logger), nil
	}
}

func (b *Bulb) Name() string { return b.base.name }

func (b *Bulb) HandledKinds() []core.OutputKind {
	return []core.OutputKind{core.LightOnOutput, core.LightOffOutput}
}

func (b *Bulb) Start(ctx context.Context) error {
	b.startWorker()
	b.logger.Info("bulb output adapter started", "name", b.Name())
	return nil
}

func (b *Bulb) Stop() error {
	b.stopWorker()
	b.logger.Info("bulb output adapter stopped", "name", b.Name())
	return nil
}

func (b *Bulb) HandleCommand(cmd core.AdapterCommand) bool {
	return false
}

func (b *Bulb) handle(event core.Event) {
	target := "tutto"
	if s, ok := event.Content.(string); ok && s != "" {
		target = strings.ToLower(s)
	}

	on := event.OutputType == core.LightOnOutput

	switch target {
	case "tutto":
		for name := range b.devices {
			b.control(name, on)
		}
	default:
		if _, ok := b.devices[target]; !ok {
			b.logger.Warn("bulb: unknown target", "target", target)
			return
		}
		b.control(target, on)
	}
}

func (b *Bulb) control(deviceName string, on bool) {
	device, ok := b.devices[deviceName]
	if !ok {
		return
	}
	var err error
	if on {
		err = device.TurnOn()
	} else {
		err = device.TurnOff()
	}
	if err != nil {
		b.logger.Warn("bulb: command failed", "device", deviceName, "on", on, "error", err)
		return
	}
	b.logger.Info("bulb: command succeeded", "device", deviceName, "on", on)
}
