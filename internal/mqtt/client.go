// Package mqtt connects cyclewatch to the broker: it ingests power and rate
// readings, publishes per-appliance state and transition events, and
// announces the derived sensors through Home Assistant MQTT discovery.
package mqtt

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"codeberg.org/mutker/cyclewatch/internal/appliance"
	"codeberg.org/mutker/cyclewatch/internal/errors"
	"codeberg.org/mutker/cyclewatch/internal/logger"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// ReadingFunc receives one parsed sensor value. The timestamp is the arrival
// time: power plugs publish plain instantaneous values without their own
// clock.
type ReadingFunc func(ts time.Time, value float64)

type subscription struct {
	topic   string
	handler paho.MessageHandler
}

// Client wraps the paho client with reconnect-safe subscriptions and a
// bounded replay buffer for messages produced while the broker is down.
type Client struct {
	cfg  Config
	errs errors.Factory
	cli  paho.Client

	mu   sync.Mutex
	subs []subscription
	buf  *ringBuffer
}

func NewClient(cfg Config) (*Client, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		cfg:  cfg,
		errs: errFactory,
		buf:  newRingBuffer(defaultBufferSize),
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetKeepAlive(defaultKeepAlive).
		SetAutoReconnect(true).
		SetConnectTimeout(defaultConnectTimeout).
		SetWill(c.availabilityTopic(), "offline", 1, true).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.Warn().Err(err).Msg("MQTT connection lost")
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	c.cli = paho.NewClient(opts)

	return c, nil
}

func (c *Client) Connect() error {
	token := c.cli.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return c.errs.WithMessage(ErrConnectFailed, "timed out connecting to "+c.cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return c.errs.Wrap(ErrConnectFailed, err)
	}

	return nil
}

func (c *Client) Close() {
	c.publish(c.availabilityTopic(), []byte("offline"), true)
	c.cli.Disconnect(250)
}

func (c *Client) IsConnected() bool {
	return c.cli.IsConnected()
}

// onConnect restores subscriptions and drains the replay buffer. Runs on
// both the first connect and every automatic reconnect.
func (c *Client) onConnect(cli paho.Client) {
	logger.Info().Str("broker", c.cfg.Broker).Msg("MQTT connected")

	cli.Publish(c.availabilityTopic(), 1, true, []byte("online"))

	c.mu.Lock()
	subs := append([]subscription(nil), c.subs...)
	pending := c.buf.drainAll()
	c.mu.Unlock()

	for _, sub := range subs {
		if token := cli.Subscribe(sub.topic, 0, sub.handler); token.Wait() && token.Error() != nil {
			logger.Error().Str("topic", sub.topic).Err(token.Error()).Msg("Failed to resubscribe")
		}
	}

	if len(pending) > 0 {
		logger.Info().Int("messages", len(pending)).Msg("Replaying buffered messages")
		for _, msg := range pending {
			cli.Publish(msg.topic, 0, msg.retained, msg.payload)
		}
	}
}

// SubscribePower routes readings from a power sensor topic to fn. Payloads
// that do not parse as a non-negative number are dropped here, before they
// reach any state machine, with a local error log.
func (c *Client) SubscribePower(topic string, fn ReadingFunc) error {
	return c.subscribe(topic, func(_ paho.Client, msg paho.Message) {
		value, err := parseValue(msg.Payload())
		if err != nil {
			logger.Warn().
				Str("topic", msg.Topic()).
				Str("payload", string(msg.Payload())).
				Msg("Dropping unparseable power payload")
			return
		}
		fn(time.Now(), value)
	})
}

// SubscribeRate routes cost-rate updates to fn.
func (c *Client) SubscribeRate(topic string, fn ReadingFunc) error {
	return c.subscribe(topic, func(_ paho.Client, msg paho.Message) {
		value, err := parseValue(msg.Payload())
		if err != nil {
			logger.Warn().
				Str("topic", msg.Topic()).
				Str("payload", string(msg.Payload())).
				Msg("Dropping unparseable rate payload")
			return
		}
		fn(time.Now(), value)
	})
}

// SubscribeService invokes fn when a service-performed command arrives for
// the appliance. Home Assistant publishes here through the discovered button.
func (c *Client) SubscribeService(name string, fn func()) error {
	return c.subscribe(c.serviceTopic(name), func(_ paho.Client, _ paho.Message) {
		logger.Info().Str("appliance", name).Msg("Service command received")
		fn()
	})
}

func (c *Client) subscribe(topic string, handler paho.MessageHandler) error {
	c.mu.Lock()
	c.subs = append(c.subs, subscription{topic: topic, handler: handler})
	c.mu.Unlock()

	if !c.cli.IsConnected() {
		// onConnect will pick it up.
		return nil
	}

	token := c.cli.Subscribe(topic, 0, handler)
	if token.Wait() && token.Error() != nil {
		return c.errs.Wrap(ErrSubscribeFailed, token.Error())
	}

	return nil
}

// PublishState publishes the retained state message for one appliance.
func (c *Client) PublishState(snap appliance.Snapshot) {
	payload, err := FormatState(snap)
	if err != nil {
		logger.Error().Str("appliance", snap.Appliance).Err(err).Msg("Failed to encode state payload")
		return
	}
	c.publish(c.stateTopic(snap.Appliance), payload, true)
}

// PublishTransition publishes a cycle start/stop event.
func (c *Client) PublishTransition(ev appliance.TransitionEvent) {
	payload, err := FormatEvent(ev)
	if err != nil {
		logger.Error().Str("appliance", ev.Appliance).Err(err).Msg("Failed to encode event payload")
		return
	}
	c.publish(c.cfg.BaseTopic+"/"+slug(ev.Appliance)+"/event", payload, false)
}

// PublishDiscovery announces the appliance's sensors to Home Assistant.
// Retained, so entities survive a Home Assistant restart.
func (c *Client) PublishDiscovery(name string, costTracked, serviceEnabled bool) {
	stateTopic := c.stateTopic(name)

	for _, item := range discoveryItems(name, stateTopic, costTracked) {
		c.publishDiscoveryItem("sensor", item)
	}
	c.publishDiscoveryItem("binary_sensor", runningItem(name, stateTopic))
	if serviceEnabled {
		c.publishDiscoveryItem("button", serviceButton(name, c.serviceTopic(name)))
	}
}

func (c *Client) publishDiscoveryItem(component string, item ConfigurationItem) {
	payload, err := item.marshal()
	if err != nil {
		logger.Error().Str("entity", item.Name).Err(err).Msg("Failed to encode discovery payload")
		return
	}
	c.publish(discoveryTopic(c.cfg.DiscoveryPrefix, component, item.UniqueId), payload, true)
}

// publish sends or, when disconnected, buffers a message for replay.
func (c *Client) publish(topic string, payload []byte, retained bool) {
	if !c.cli.IsConnected() {
		c.mu.Lock()
		c.buf.push(bufferedMsg{topic: topic, payload: payload, retained: retained})
		c.mu.Unlock()
		return
	}

	token := c.cli.Publish(topic, 0, retained, payload)
	go func() {
		if token.Wait() && token.Error() != nil {
			logger.Warn().Str("topic", topic).Err(token.Error()).Msg("Publish failed")
		}
	}()
}

func (c *Client) stateTopic(name string) string {
	return c.cfg.BaseTopic + "/" + slug(name) + "/state"
}

func (c *Client) serviceTopic(name string) string {
	return c.cfg.BaseTopic + "/" + slug(name) + "/service/set"
}

func (c *Client) availabilityTopic() string {
	return c.cfg.BaseTopic + "/availability"
}

func parseValue(payload []byte) (float64, error) {
	errFactory := errors.New()

	value, err := strconv.ParseFloat(strings.TrimSpace(string(payload)), 64)
	if err != nil {
		return 0, errFactory.Wrap(ErrMalformedPayload, err)
	}

	return value, nil
}
