package input

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/lokutor-ai/lokutor-orchestrator/pkg/adapter"
	"github.com/lokutor-ai/lokutor-orchestrator/pkg/adapters/cfgutil"
	"github.com/lokutor-ai/lokutor-orchestrator/pkg/core"
)

type temperatureReading struct {
	TemperatureC float64 `json:"temperature_c"`
	HumidityPct  float64 `json:"humidity_pct"`
}

// Temperature subscribes to an MQTT topic fed by a DHT11 bridge and
// only emits a SensorTemperature event when the reading moves by at
// least Delta from the last reported value, matching
// temperature_input.py's cached-last-value suppression.
type Temperature struct {
	name      string
	brokerURL string
	topic     string
	delta     float64

	queue  *core.PriorityQueue
	logger core.Logger

	mu           sync.Mutex
	lastReported *temperatureReading

	cm     *autopaho.ConnectionManager
	cancel context.CancelFunc
}

// NewTemperature builds a Temperature adapter.
func NewTemperature(name, brokerURL, topic string, delta float64, queue *core.PriorityQueue, logger core.Logger) *Temperature {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	return &Temperature{
		name:      name,
		brokerURL: brokerURL,
		topic:     topic,
		delta:     delta,
		queue:     queue,
		logger:    logger,
	}
}

// BuildTemperature is the factory.InputBuilder for implementation
// "temperature".
func BuildTemperature(queue *core.PriorityQueue, logger core.Logger) adapter.InputBuilder {
	return func(name string, cfg map[string]any) (adapter.InputAdapter, error) {
		broker, err := cfgutil.RequiredString(cfg, "broker")
		if err != nil {
			return nil, err
		}
		topic := cfgutil.String(cfg, "topic", "buddy/sensors/temperature")
		delta := cfgutil.Float64(cfg, "delta", 0.5)
		return NewTemperature(name, broker, topic, delta, queue, logger), nil
	}
}

func (t *Temperature) Name() string { return t.name }

func (t *Temperature) HandledKinds() []core.InputKind {
	return []core.InputKind{core.SensorTemperature}
}

func (t *Temperature) Start(ctx context.Context) error {
	u, err := url.Parse(t.brokerURL)
	if err != nil {
		return fmt.Errorf("temperature: parse broker url: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel

	cfg := autopaho.ClientConfig{
		ServerUrls: []*url.URL{u},
		KeepAlive:  30,
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			if _, err := cm.Subscribe(runCtx, &paho.Subscribe{
				Subscriptions: []paho.SubscribeOptions{{Topic: t.topic, QoS: 0}},
			}); err != nil {
				t.logger.Error("temperature: subscribe failed", "error", err)
			}
		},
		OnConnectError: func(err error) {
			t.logger.Warn("temperature: mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: t.name,
		},
	}
	cfg.AddOnPublishReceived(func(pr autopaho.PublishReceived) (bool, error) {
		t.handleMessage(pr.Packet.Payload)
		return true, nil
	})

	cm, err := autopaho.NewConnection(runCtx, cfg)
	if err != nil {
		cancel()
		return fmt.Errorf("temperature: connect: %w", err)
	}
	t.cm = cm
	t.logger.Info("temperature adapter started", "name", t.name, "broker", t.brokerURL, "topic", t.topic)
	return nil
}

func (t *Temperature) Stop() error {
	if t.cancel != nil {
		t.cancel()
	}
	if t.cm != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return t.cm.Disconnect(ctx)
	}
	return nil
}

func (t *Temperature) HandleCommand(cmd core.AdapterCommand) bool {
	return false
}

func (t *Temperature) handleMessage(payload []byte) {
	var reading temperatureReading
	if err := json.Unmarshal(payload, &reading); err != nil {
		t.logger.Warn("temperature: malformed reading", "error", err)
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.lastReported != nil {
		diff := reading.TemperatureC - t.lastReported.TemperatureC
		if diff < 0 {
			diff = -diff
		}
		if diff < t.delta {
			return
		}
	}

	last := reading
	t.lastReported = &last

	event := core.NewInputEvent(core.SensorTemperature, core.LOW, reading.TemperatureC,
		core.WithSource(t.name), core.WithMetadata(map[string]any{
			"humidity": reading.HumidityPct,
		}))
	if !t.queue.Offer(event) {
		t.logger.Warn("temperature: input queue full, dropped reading")
	}
}
