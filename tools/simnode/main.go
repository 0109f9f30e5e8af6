package main

import (
	"encoding/json"
	"flag"
	"log"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"homesafe-cloud/internal/bus"
)

// simnode publishes simulated air and stove telemetry for one home and
// applies fan/buzzer commands from the shared control topics to its
// simulated state.
func main() {
	brokerURL := flag.String("broker", getenvDefault("MQTT_BROKER_URL", "tcp://localhost:1883"), "MQTT broker URL")
	homeID := flag.String("home", "HOME_01", "home identifier")
	period := flag.Duration("period", 5*time.Second, "publish interval")
	profile := flag.String("profile", "idle", "cooking profile: idle, simmer, fry, burn")
	flag.Parse()

	logger := log.New(os.Stdout, "", log.LstdFlags)
	node := newSimNode(*homeID, *profile)

	opts := mqtt.NewClientOptions().
		AddBroker(*brokerURL).
		SetClientID("simnode-" + strings.ToLower(*homeID)).
		SetAutoReconnect(true)
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		logger.Fatalf("connect: %v", token.Error())
	}
	defer client.Disconnect(250)
	logger.Printf("simnode for %s connected to %s", *homeID, *brokerURL)

	announce(client, node, logger)

	for _, deviceType := range []string{"AIRNODE", "STOVENODE"} {
		topic := bus.ControlTopic(deviceType)
		if token := client.Subscribe(topic, 1, node.onControl(logger)); token.Wait() && token.Error() != nil {
			logger.Fatalf("subscribe %s: %v", topic, token.Error())
		}
	}

	ticker := time.NewTicker(*period)
	defer ticker.Stop()
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case now := <-ticker.C:
			publish(client, bus.TopicTelemetryAir, node.airReading(now.UTC()), logger)
			publish(client, bus.TopicTelemetryStove, node.stoveReading(now.UTC()), logger)
		case <-stop:
			logger.Printf("simnode stopping")
			return
		}
	}
}

// cookingProfile shapes the stove temperature curve.
type cookingProfile struct {
	baseTemp float64
	peakTemp float64
	smoke    float64
}

var profiles = map[string]cookingProfile{
	"idle":   {baseTemp: 22, peakTemp: 25, smoke: 0},
	"simmer": {baseTemp: 80, peakTemp: 110, smoke: 0.2},
	"fry":    {baseTemp: 150, peakTemp: 210, smoke: 0.6},
	"burn":   {baseTemp: 220, peakTemp: 290, smoke: 1.0},
}

type simNode struct {
	homeID      string
	airDeviceID string
	stoveID     string
	profileName string
	profile     cookingProfile
	start       time.Time

	mu       sync.Mutex
	fanOn    bool
	buzzerOn bool

	co2Base float64
	rng     *rand.Rand
}

func newSimNode(homeID, profileName string) *simNode {
	profile, ok := profiles[profileName]
	if !ok {
		profile = profiles["idle"]
		profileName = "idle"
	}
	return &simNode{
		homeID:      homeID,
		airDeviceID: "AIR_" + homeID,
		stoveID:     "STOVE_" + homeID,
		profileName: profileName,
		profile:     profile,
		start:       time.Now().UTC(),
		co2Base:     420,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (n *simNode) airReading(now time.Time) map[string]any {
	n.mu.Lock()
	fanOn := n.fanOn
	n.mu.Unlock()

	// CO2 and particulates drift upward while cooking; the fan vents.
	minutes := now.Sub(n.start).Minutes()
	co2 := n.co2Base + n.profile.smoke*600*sigmoid(minutes/10) + n.rng.Float64()*40
	pm25 := 5 + n.profile.smoke*60*sigmoid(minutes/8) + n.rng.Float64()*3
	co := n.profile.smoke * 12 * sigmoid(minutes/15)
	if fanOn {
		co2 *= 0.6
		pm25 *= 0.5
		co *= 0.5
	}

	return map[string]any{
		"ts":           now.Format(time.RFC3339),
		"deviceId":     n.airDeviceID,
		"homeId":       n.homeID,
		"stream":       "AIR",
		"co2":          round1(co2),
		"co":           round1(co),
		"pm25":         round1(pm25),
		"pm10":         round1(pm25 * 1.6),
		"temperatureC": round1(21 + n.profile.smoke*4 + n.rng.Float64()),
		"humidityPct":  round1(45 + n.rng.Float64()*10),
		"fanOn":        fanOn,
		"windowOpen":   false,
	}
}

func (n *simNode) stoveReading(now time.Time) map[string]any {
	n.mu.Lock()
	buzzerOn := n.buzzerOn
	n.mu.Unlock()

	minutes := now.Sub(n.start).Minutes()
	span := n.profile.peakTemp - n.profile.baseTemp
	temp := n.profile.baseTemp + span*sigmoid(minutes/5) + n.rng.Float64()*5

	return map[string]any{
		"ts":         now.Format(time.RFC3339),
		"deviceId":   n.stoveID,
		"homeId":     n.homeID,
		"stream":     "STOVE",
		"stoveTempC": round1(temp),
		"buzzerOn":   buzzerOn,
		"profile":    n.profileName,
	}
}

// onControl applies commands addressed to this node's devices. Commands
// arrive on the shared per-type topic; anything addressed to another
// device is ignored.
func (n *simNode) onControl(logger *log.Logger) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		var cmd struct {
			DeviceID string         `json:"deviceId"`
			Command  map[string]any `json:"command"`
		}
		if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
			logger.Printf("control: malformed payload on %s: %v", msg.Topic(), err)
			return
		}
		if cmd.DeviceID != n.airDeviceID && cmd.DeviceID != n.stoveID {
			return
		}
		n.mu.Lock()
		if v, ok := cmd.Command["fanOn"].(bool); ok {
			n.fanOn = v
		}
		if v, ok := cmd.Command["buzzerOn"].(bool); ok {
			n.buzzerOn = v
		}
		n.mu.Unlock()
		logger.Printf("control: applied %v to %s", cmd.Command, cmd.DeviceID)
	}
}

func announce(client mqtt.Client, node *simNode, logger *log.Logger) {
	payload, _ := json.Marshal(map[string]any{
		"homeId":  node.homeID,
		"devices": []string{node.airDeviceID, node.stoveID},
		"status":  "online",
		"ts":      time.Now().UTC().Format(time.RFC3339),
	})
	if token := client.Publish(bus.TopicAvailability, 1, true, payload); token.Wait() && token.Error() != nil {
		logger.Printf("announce: %v", token.Error())
	}
}

func publish(client mqtt.Client, topic string, payload map[string]any, logger *log.Logger) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Printf("publish %s: marshal: %v", topic, err)
		return
	}
	if token := client.Publish(topic, 1, false, data); token.Wait() && token.Error() != nil {
		logger.Printf("publish %s: %v", topic, token.Error())
	}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-4*(x-0.5)))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}
