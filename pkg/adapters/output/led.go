package output

import (
	"context"
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"

	"github.com/lokutor-ai/lokutor-orchestrator/pkg/adapter"
	"github.com/lokutor-ai/lokutor-orchestrator/pkg/adapters/cfgutil"
	"github.com/lokutor-ai/lokutor-orchestrator/pkg/core"
)

// GPIOPort is the narrow surface LED needs from a single output pin.
// gpiodPort backs it with a real gpiocdev line; consolePort is the
// dependency-free fallback used off-device, mirroring
// led_output.py's MockLEDOutput.
type GPIOPort interface {
	On() error
	Off() error
	Close() error
}

type gpiodPort struct {
	line *gpiocdev.Line
}

func newGPIODPort(chip string, offset int) (*gpiodPort, error) {
	line, err := gpiocdev.RequestLine(chip, offset, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("request gpio line %s:%d: %w", chip, offset, err)
	}
	return &gpiodPort{line: line}, nil
}

func (p *gpiodPort) On() error  { return p.line.SetValue(1) }
func (p *gpiodPort) Off() error { return p.line.SetValue(0) }
func (p *gpiodPort) Close() error {
	return p.line.Close()
}

// consolePort logs instead of driving a pin. Used when no gpio chip
// is configured, e.g. running off a Raspberry Pi.
type consolePort struct {
	ledName string
	logger  core.Logger
}

func (p *consolePort) On() error  { p.logger.Debug("led console: on", "led", p.ledName); return nil }
func (p *consolePort) Off() error { p.logger.Debug("led console: off", "led", p.ledName); return nil }
func (p *consolePort) Close() error { return nil }

// LED drives the listening/speaking indicator LEDs in response to
// LedControl events, grounded on led_output.py's GPIOLEDOutput: on/off
// are immediate, a fixed N-times blink runs on the worker goroutine,
// and a native continuous toggle loop runs in a goroutine of its own;
// neither blocks event dispatch to other adapters.
type LED struct {
	*base
	ports map[string]GPIOPort

	onTime  time.Duration
	offTime time.Duration

	blinkCancel context.CancelFunc
}

// NewLED builds an LED output adapter. ports maps a logical LED name
// (e.g. "ascolto", "parlo") to its GPIOPort.
func NewLED(name string, queueSize int, ports map[string]GPIOPort, onTime, offTime time.Duration, logger core.Logger) *LED {
	l := &LED{ports: ports, onTime: onTime, offTime: offTime}
	l.base = newBase(name, queueSize, logger, l.handle)
	return l
}

// BuildLED is the factory.OutputBuilder for implementation "led". Set
// chip to "" to force the console fallback regardless of pin config.
func BuildLED(chip string, logger core.Logger) adapter.OutputBuilder {
	return func(name string, cfg map[string]any) (adapter.OutputAdapter, error) {
		queueSize := cfgutil.Int(cfg, "queue_maxsize", 50)
		onTime := time.Duration(cfgutil.Float64(cfg, "blink_on_time", 0.2) * float64(time.Second))
		offTime := time.Duration(cfgutil.Float64(cfg, "blink_off_time", 0.2) * float64(time.Second))

		ascoltoPin := cfgutil.Int(cfg, "led_ascolto_pin", -1)
		parloPin := cfgutil.Int(cfg, "led_parlo_pin", -1)

		ports := map[string]GPIOPort{}
		for ledName, pin := range map[string]int{"ascolto": ascoltoPin, "parlo": parloPin} {
			if chip == "" || pin < 0 {
				ports[ledName] = &consolePort{ledName: ledName, logger: logger}
				continue
			}
			port, err := newGPIODPort(chip, pin)
			if err != nil {
				return nil, fmt.Errorf("led: %w", err)
			}
			ports[ledName] = port
		}
		return NewLED(name, queueSize, ports, onTime, offTime, logger), nil
	}
}

func (l *LED) Name() string { return l.base.name }

func (l *LED) HandledKinds() []core.OutputKind { return []core.OutputKind{core.LedControl} }

func (l *LED) Start(ctx context.Context) error {
	l.startWorker()
	l.logger.Info("led output adapter started", "name", l.Name())
	return nil
}

func (l *LED) Stop() error {
	l.stopWorker()
	for name, port := range l.ports {
		if err := port.Close(); err != nil {
			l.logger.Debug("led: cleanup error", "led", name, "error", err)
		}
	}
	l.logger.Info("led output adapter stopped", "name", l.Name())
	return nil
}

func (l *LED) HandleCommand(cmd core.AdapterCommand) bool {
	return false
}

func (l *LED) handle(event core.Event) {
	if event.Metadata == nil {
		l.logger.Warn("led_control event without metadata, ignoring")
		return
	}

	ledName := event.MetaString("led")
	command := event.MetaString("command")
	if ledName == "" || command == "" {
		l.logger.Warn("led_control missing led or command", "metadata", event.Metadata)
		return
	}

	port, ok := l.ports[ledName]
	if !ok {
		l.logger.Warn("led_control: unknown led", "led", ledName)
		return
	}

	if l.blinkCancel != nil {
		l.blinkCancel()
		l.blinkCancel = nil
	}

	switch command {
	case "on":
		port.Off()
		port.On()
	case "off":
		port.Off()
	case "blink":
		l.handleBlink(port, event)
	default:
		l.logger.Warn("led_control: unknown command", "command", command)
	}
}

func (l *LED) handleBlink(port GPIOPort, event core.Event) {
	onTime := l.onTime
	if v := event.MetaFloat("on_time"); v > 0 {
		onTime = time.Duration(v * float64(time.Second))
	}
	offTime := l.offTime
	if v := event.MetaFloat("off_time"); v > 0 {
		offTime = time.Duration(v * float64(time.Second))
	}

	if event.MetaBool("continuous") {
		ctx, cancel := context.WithCancel(context.Background())
		l.blinkCancel = cancel
		go blinkLoop(ctx, port, onTime, offTime)
		return
	}

	times := 3
	if event.Metadata != nil {
		if n, ok := event.Metadata["times"].(int); ok {
			times = n
		} else if n, ok := event.Metadata["times"].(float64); ok {
			times = int(n)
		}
	}
	port.Off()
	for i := 0; i < times; i++ {
		port.On()
		time.Sleep(onTime)
		port.Off()
		time.Sleep(offTime)
	}
}

func blinkLoop(ctx context.Context, port GPIOPort, onTime, offTime time.Duration) {
	for {
		select {
		case <-ctx.Done():
			port.Off()
			return
		default:
		}
		port.On()
		select {
		case <-ctx.Done():
			port.Off()
			return
		case <-time.After(onTime):
		}
		port.Off()
		select {
		case <-ctx.Done():
			return
		case <-time.After(offTime):
		}
	}
}
