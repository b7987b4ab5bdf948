package main

import (
	"flag"
	"log"
	"os"
	"strings"

	"github.com/robotalks/relay.go/pkg/telemetry"
	"github.com/robotalks/relay.go/pkg/telemetry/mqtt"
)

var (
	mqttURL = "mqtt://localhost:1883/relay/"
	boardID = "+"
)

func init() {
	if val := os.Getenv("RELAY_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
	flag.StringVar(&boardID, "board", boardID, "Board ID to watch, + for all.")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	q, err := mqtt.NewQueueFromURL(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}
	mqtt.Watch(q, boardID, func(board string, meta *telemetry.Meta) {
		if meta == nil {
			log.Printf("%s: gone", board)
			return
		}
		log.Printf("%s: channels=%s wiring=%s overflow=%s queue=%d mode=%s", board,
			strings.Join(meta.Channels, ","), meta.Wiring, meta.Overflow, meta.QueueCap, meta.Mode)
	}, func(ev *telemetry.Event) {
		log.Printf("%s/%s: %s 0x%02x size=%d", ev.Board, ev.Channel, ev.Kind, ev.Byte, ev.QueueSize)
	})
	if token := q.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalln(token.Error())
	}
	<-(chan struct{})(nil)
}
