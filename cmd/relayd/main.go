package main

//go-build: CGO_ENABLED=0

import (
	"flag"
	"log"
	"os"

	"github.com/robotalks/relay.go/pkg/board"
	fx "github.com/robotalks/relay.go/pkg/framework"
	"github.com/robotalks/relay.go/pkg/telemetry"
	"github.com/robotalks/relay.go/pkg/telemetry/mqtt"
)

var mqttURL string

func init() {
	if val := os.Getenv("RELAY_MQTT_URL"); val != "" {
		mqttURL = val
	}
	board.SetupFlags()
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL for telemetry, e.g. mqtt://localhost:1883/relay/. Empty disables.")
}

func main() {
	flag.Parse()

	conf := board.NewConfig()
	runner := fx.NewRunner().HandleSignals()
	adder := conf.MustNewRunnerAdder()
	if b, ok := adder.(*board.Board); ok && mqttURL != "" {
		pub, err := mqtt.NewPublisher(mqttURL, telemetry.Meta{
			Board:    b.ID,
			Channels: b.ChannelNames(),
			Wiring:   b.Wiring().String(),
			Overflow: conf.Overflow,
			QueueCap: conf.QueueCap,
			Mode:     conf.Mode,
		})
		if err != nil {
			log.Fatalln(err)
		}
		notifier := telemetry.NewNotifier(b.ID, pub, telemetry.DefaultDepth)
		b.Subscribe(notifier)
		runner.Go(pub, notifier)
	}
	if err := runner.Add(adder).Wait(); err != nil {
		log.Fatalln(err)
	}
}
