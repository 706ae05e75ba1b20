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

// radarReading is the payload an LD2410C bridge publishes to the radar
// topic. Field names mirror radar_input.py's _read_radar_data dict.
type radarReading struct {
	Presence       bool `json:"presence"`
	Movement       bool `json:"movement"`
	Distance       int  `json:"distance"`
	MovDistance    int  `json:"mov_distance"`
	MovEnergy      int  `json:"mov_energy"`
	StaticDistance int  `json:"static_distance"`
	StaticEnergy   int  `json:"static_energy"`
}

// Radar subscribes to an MQTT topic fed by an LD2410C presence/motion
// bridge and applies the same debounce-by-confirmations smoothing as
// radar_input.py's worker loop before emitting SensorPresence and
// SensorMovement events.
type Radar struct {
	name          string
	brokerURL     string
	topic         string
	confirmations int
	movementMin   int

	queue  *core.PriorityQueue
	logger core.Logger

	mu                  sync.Mutex
	lastStablePresence  *bool
	potentialPresence   bool
	confirmationCount   int

	cm     *autopaho.ConnectionManager
	cancel context.CancelFunc
}

// NewRadar builds a Radar adapter.
func NewRadar(name, brokerURL, topic string, confirmations, movementMin int, queue *core.PriorityQueue, logger core.Logger) *Radar {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	if confirmations < 1 {
		confirmations = 1
	}
	return &Radar{
		name:          name,
		brokerURL:     brokerURL,
		topic:         topic,
		confirmations: confirmations,
		movementMin:   movementMin,
		queue:         queue,
		logger:        logger,
	}
}

// BuildRadar is the factory.InputBuilder for implementation "radar".
func BuildRadar(queue *core.PriorityQueue, logger core.Logger) adapter.InputBuilder {
	return func(name string, cfg map[string]any) (adapter.InputAdapter, error) {
		broker, err := cfgutil.RequiredString(cfg, "broker")
		if err != nil {
			return nil, err
		}
		topic := cfgutil.String(cfg, "topic", "buddy/sensors/radar")
		confirmations := cfgutil.Int(cfg, "confirmations", 3)
		movementMin := cfgutil.Int(cfg, "movement_energy_min", 15)
		return NewRadar(name, broker, topic, confirmations, movementMin, queue, logger), nil
	}
}

func (r *Radar) Name() string { return r.name }

func (r *Radar) HandledKinds() []core.InputKind {
	return []core.InputKind{core.SensorPresence, core.SensorMovement}
}

func (r *Radar) Start(ctx context.Context) error {
	u, err := url.Parse(r.brokerURL)
	if err != nil {
		return fmt.Errorf("radar: parse broker url: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	cfg := autopaho.ClientConfig{
		ServerUrls: []*url.URL{u},
		KeepAlive:  30,
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			if _, err := cm.Subscribe(runCtx, &paho.Subscribe{
				Subscriptions: []paho.SubscribeOptions{{Topic: r.topic, QoS: 0}},
			}); err != nil {
				r.logger.Error("radar: subscribe failed", "error", err)
			}
		},
		OnConnectError: func(err error) {
			r.logger.Warn("radar: mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: r.name,
		},
	}
	cfg.AddOnPublishReceived(func(pr autopaho.PublishReceived) (bool, error) {
		r.handleMessage(pr.Packet.Payload)
		return true, nil
	})

	cm, err := autopaho.NewConnection(runCtx, cfg)
	if err != nil {
		cancel()
		return fmt.Errorf("radar: connect: %w", err)
	}
	r.cm = cm
	r.logger.Info("radar adapter started", "name", r.name, "broker", r.brokerURL, "topic", r.topic)
	return nil
}

func (r *Radar) Stop() error {
	if r.cancel != nil {
		r.cancel()
	}
	if r.cm != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return r.cm.Disconnect(ctx)
	}
	return nil
}

func (r *Radar) HandleCommand(cmd core.AdapterCommand) bool {
	return false
}

func (r *Radar) handleMessage(payload []byte) {
	var reading radarReading
	if err := json.Unmarshal(payload, &reading); err != nil {
		r.logger.Warn("radar: malformed reading", "error", err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.lastStablePresence == nil {
		p := reading.Presence
		r.lastStablePresence = &p
		r.potentialPresence = p
		r.confirmationCount = 1
		r.sendPresence(p, reading)
	} else {
		if reading.Presence == r.potentialPresence {
			r.confirmationCount++
		} else {
			r.potentialPresence = reading.Presence
			r.confirmationCount = 1
		}
		if r.confirmationCount >= r.confirmations && r.potentialPresence != *r.lastStablePresence {
			stable := r.potentialPresence
			r.lastStablePresence = &stable
			r.sendPresence(stable, reading)
		}
	}

	if reading.Movement && reading.MovEnergy > r.movementMin {
		r.sendMovement(reading)
	}
}

func (r *Radar) sendPresence(presence bool, reading radarReading) {
	event := core.NewInputEvent(core.SensorPresence, core.LOW, presence,
		core.WithSource(r.name), core.WithMetadata(map[string]any{
			"distance":        reading.Distance,
			"static_distance":  reading.StaticDistance,
			"static_energy":    reading.StaticEnergy,
		}))
	if !r.queue.Offer(event) {
		r.logger.Warn("radar: input queue full, dropped presence event")
	}
}

func (r *Radar) sendMovement(reading radarReading) {
	event := core.NewInputEvent(core.SensorMovement, core.LOW, true,
		core.WithSource(r.name), core.WithMetadata(map[string]any{
			"mov_distance": reading.MovDistance,
			"mov_energy":   reading.MovEnergy,
		}))
	if !r.queue.Offer(event) {
		r.logger.Warn("radar: input queue full, dropped movement event")
	}
}
