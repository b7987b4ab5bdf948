package mqtt

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/relay.go/pkg/telemetry"
)

// MetaTopic is the retained meta topic of a board.
func MetaTopic(board string) string {
	return board + "/meta"
}

// EventTopic is the event topic of a board channel.
func EventTopic(board, channel string) string {
	return board + "/" + channel + "/event"
}

// Publisher implements telemetry.Publisher over MQTT. While it runs the
// board's meta is retained on the broker; a will clears it if the
// connection drops.
type Publisher struct {
	Queue *Queue
	Meta  telemetry.Meta

	metaJSON []byte
}

// ConnectTimeout bounds the initial connect.
const ConnectTimeout = 5 * time.Second

// NewPublisher creates a Publisher.
func NewPublisher(brokerURL string, meta telemetry.Meta) (*Publisher, error) {
	metaJSON, err := json.Marshal(&meta)
	if err != nil {
		return nil, err
	}
	opts, topicPrefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	opts.SetBinaryWill(topicPrefix+MetaTopic(meta.Board), nil, 1, true)
	if opts.ClientID == "" {
		opts.SetClientID("relay:" + meta.Board)
	}
	p := &Publisher{Queue: NewQueue(opts, topicPrefix), Meta: meta, metaJSON: metaJSON}
	p.Queue.OnConnect = func(*Queue) { p.publishMeta() }
	return p, nil
}

// Publish implements telemetry.Publisher. Delivery is asynchronous.
func (p *Publisher) Publish(ev *telemetry.Event) error {
	data, err := ev.Encode()
	if err != nil {
		return err
	}
	p.Queue.Pub(EventTopic(ev.Board, ev.Channel), data)
	return nil
}

// Name implements Named.
func (p *Publisher) Name() string { return "mqtt" }

// Run implements Runnable. A broker that can't be reached only disables
// telemetry.
func (p *Publisher) Run(ctx context.Context) error {
	token := p.Queue.Connect()
	if token.WaitTimeout(ConnectTimeout) && token.Error() != nil {
		glog.Errorf("telemetry disabled: %v", token.Error())
		return nil
	}
	<-ctx.Done()
	p.Queue.PubWith(MetaTopic(p.Meta.Board), nil, 1, true).WaitTimeout(time.Second)
	p.Queue.Close()
	return nil
}

func (p *Publisher) publishMeta() {
	p.Queue.PubWith(MetaTopic(p.Meta.Board), p.metaJSON, 1, true)
}

// Watch subscribes to meta and events of a board, "+" for every board.
// onMeta receives nil when a board goes away.
func Watch(q *Queue, board string, onMeta func(board string, meta *telemetry.Meta), onEvent func(*telemetry.Event)) []*Subscription {
	metaSub := q.Sub(MetaTopic(board), func(topic string, payload []byte) {
		name := strings.TrimSuffix(topic, "/meta")
		if len(payload) == 0 {
			onMeta(name, nil)
			return
		}
		var meta telemetry.Meta
		if err := json.Unmarshal(payload, &meta); err != nil {
			glog.Warningf("%s: bad meta: %v", topic, err)
			return
		}
		onMeta(name, &meta)
	})
	eventSub := q.Sub(EventTopic(board, "+"), func(topic string, payload []byte) {
		ev, err := telemetry.DecodeEvent(payload)
		if err != nil {
			glog.Warningf("%s: bad event: %v", topic, err)
			return
		}
		onEvent(ev)
	})
	return []*Subscription{metaSub, eventSub}
}
