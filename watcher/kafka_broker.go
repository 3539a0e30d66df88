package watcher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Shopify/sarama"
	uuid "github.com/hashicorp/go-uuid"

	"github.com/vision-chain/vision-node/log"
)

// KafkaBroker is the optional out-of-process transport spec §4.8's
// grounding names for a multi-process deployment: watchers publish to a
// topic; a separate bridge process (or the same one, for convenience)
// consumes it back out. Directly modeled on
// datasync/chaindatafetcher/event/kafka/kafka.go's KafkaBroker —
// the same newProducer/newConsumer/newClusterAdmin split and producer
// config (WaitForLocal acks, snappy compression, 500ms flush interval),
// generalized from the teacher's single hardcoded "event" topic and
// interface{} payload to one topic per deposit stream and a typed
// DepositEvent payload.
type KafkaBroker struct {
	topic    string
	brokers  []string
	producer sarama.AsyncProducer
	admin    sarama.ClusterAdmin
	group    sarama.ConsumerGroup

	ch   chan DepositEvent
	done chan struct{}
	log  log.Logger
}

func NewKafkaBroker(brokers []string, topic, groupID string, replicas int16) (*KafkaBroker, error) {
	admin, err := newClusterAdmin(brokers)
	if err != nil {
		return nil, err
	}
	if err := admin.CreateTopic(topic, &sarama.TopicDetail{NumPartitions: 10, ReplicationFactor: replicas}, false); err != nil {
		if topicErr, ok := err.(*sarama.TopicError); !ok || topicErr.Err != sarama.ErrTopicAlreadyExists {
			admin.Close()
			return nil, err
		}
	}

	producer, err := newProducer(brokers)
	if err != nil {
		admin.Close()
		return nil, err
	}

	group, err := newConsumerGroup(brokers, groupID)
	if err != nil {
		producer.Close()
		admin.Close()
		return nil, err
	}

	kb := &KafkaBroker{
		topic:    topic,
		brokers:  brokers,
		producer: producer,
		admin:    admin,
		group:    group,
		ch:       make(chan DepositEvent, 256),
		done:     make(chan struct{}),
		log:      log.NewModuleLogger(log.ModuleWatcher).With("broker", "kafka", "topic", topic),
	}
	go kb.drainProducerErrors()
	go kb.consumeLoop()
	return kb, nil
}

func newProducer(brokers []string) (sarama.AsyncProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Compression = sarama.CompressionSnappy
	cfg.Producer.Flush.Frequency = 500 * time.Millisecond
	cfg.Producer.Return.Errors = true
	return sarama.NewAsyncProducer(brokers, cfg)
}

func newConsumerGroup(brokers []string, groupID string) (sarama.ConsumerGroup, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.MaxVersion
	cfg.Consumer.Group.Session.Timeout = 6 * time.Second
	cfg.Consumer.Group.Heartbeat.Interval = 2 * time.Second

	id, _ := uuid.GenerateUUID()
	cfg.ClientID = fmt.Sprintf("%s-%s", groupID, id)
	return sarama.NewConsumerGroup(brokers, groupID, cfg)
}

func newClusterAdmin(brokers []string) (sarama.ClusterAdmin, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.MaxVersion
	return sarama.NewClusterAdmin(brokers, cfg)
}

func (kb *KafkaBroker) Publish(ev DepositEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	kb.producer.Input() <- &sarama.ProducerMessage{
		Topic: kb.topic,
		Key:   sarama.StringEncoder(fmt.Sprintf("%s:%s:%d", ev.Chain, ev.TxID, ev.Vout)),
		Value: sarama.ByteEncoder(data),
	}
	return nil
}

func (kb *KafkaBroker) Subscribe() <-chan DepositEvent { return kb.ch }

func (kb *KafkaBroker) Close() error {
	close(kb.done)
	kb.group.Close()
	kb.producer.Close()
	kb.admin.Close()
	close(kb.ch)
	return nil
}

func (kb *KafkaBroker) drainProducerErrors() {
	for {
		select {
		case <-kb.done:
			return
		case err, ok := <-kb.producer.Errors():
			if !ok {
				return
			}
			kb.log.Warn("failed to publish deposit event", "err", err)
		}
	}
}

func (kb *KafkaBroker) consumeLoop() {
	handler := &depositConsumerHandler{out: kb.ch, log: kb.log}
	for {
		select {
		case <-kb.done:
			return
		default:
		}
		if err := kb.group.Consume(context.Background(), []string{kb.topic}, handler); err != nil {
			kb.log.Warn("consumer group session ended", "err", err)
			select {
			case <-kb.done:
				return
			case <-time.After(time.Second):
			}
		}
	}
}

// depositConsumerHandler implements sarama.ConsumerGroupHandler, decoding
// each message back into a DepositEvent and forwarding it to the
// broker's output channel.
type depositConsumerHandler struct {
	out chan<- DepositEvent
	log log.Logger
}

func (h *depositConsumerHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *depositConsumerHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *depositConsumerHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		var ev DepositEvent
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			h.log.Warn("dropping malformed deposit event", "err", err)
			sess.MarkMessage(msg, "")
			continue
		}
		h.out <- ev
		sess.MarkMessage(msg, "")
	}
	return nil
}
