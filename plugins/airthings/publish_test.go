package airthings

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeMQTT struct {
	mqtt.Client

	messages     []published
	failTopic    string
	disconnected bool
}

func (f *fakeMQTT) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	if topic == f.failTopic {
		return &fakeToken{err: errors.New("broker rejected")}
	}
	f.messages = append(f.messages, published{topic: topic, qos: qos, retained: retained, payload: payload.([]byte)})
	return &fakeToken{}
}

func (f *fakeMQTT) Disconnect(uint) {
	f.disconnected = true
}

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

func TestPublisherPublishesRetainedState(t *testing.T) {
	client := &fakeMQTT{}
	publisher := NewMQTTPublisherWithClient(client, "/home/air/", zerolog.Nop())

	devices := map[string]Device{
		"B": {SerialNumber: "B", Name: "Office"},
		"A": {SerialNumber: "A", Name: "Bedroom", Sensors: []SensorReading{{Kind: "co2", Value: 600, Unit: "ppm"}}},
	}
	require.NoError(t, publisher.Publish(context.Background(), devices))

	require.Len(t, client.messages, 2)
	require.Equal(t, "home/air/A/state", client.messages[0].topic)
	require.Equal(t, "home/air/B/state", client.messages[1].topic)
	require.Equal(t, byte(1), client.messages[0].qos)
	require.True(t, client.messages[0].retained)

	var decoded Device
	require.NoError(t, json.Unmarshal(client.messages[0].payload, &decoded))
	require.Equal(t, devices["A"].Sensors, decoded.Sensors)

	publisher.Close()
	require.True(t, client.disconnected)
}

func TestPublisherContinuesAfterFailure(t *testing.T) {
	client := &fakeMQTT{failTopic: "airthings/A/state"}
	publisher := NewMQTTPublisherWithClient(client, "", zerolog.Nop())

	err := publisher.Publish(context.Background(), map[string]Device{
		"A": {SerialNumber: "A"},
		"B": {SerialNumber: "B"},
	})
	require.ErrorContains(t, err, "broker rejected")
	require.Len(t, client.messages, 1)
	require.Equal(t, "airthings/B/state", client.messages[0].topic)
}

func TestPollerPublishesOnSuccess(t *testing.T) {
	client := &fakeMQTT{}
	publisher := NewMQTTPublisherWithClient(client, "", zerolog.Nop())
	poller := NewPoller(NewSyncer(twoDeviceAPI(), SyncOptions{}, zerolog.Nop()), time.Minute, zerolog.Nop(), publisher)

	devices, err := poller.SyncNow(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 2)
	require.Len(t, client.messages, 2)
	require.NoError(t, poller.LastError())
}

func TestPollerSkipsPublishOnFailure(t *testing.T) {
	api := twoDeviceAPI()
	api.accountsErr = UnexpectedStatusError{Status: 503}
	client := &fakeMQTT{}
	publisher := NewMQTTPublisherWithClient(client, "", zerolog.Nop())
	poller := NewPoller(NewSyncer(api, SyncOptions{}, zerolog.Nop()), time.Minute, zerolog.Nop(), publisher)

	_, err := poller.SyncNow(context.Background())
	require.Error(t, err)
	require.Empty(t, client.messages)
	require.Equal(t, err, poller.LastError())
}

func TestPollerStartRunsImmediately(t *testing.T) {
	api := twoDeviceAPI()
	poller := NewPoller(NewSyncer(api, SyncOptions{}, zerolog.Nop()), time.Hour, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poller.Start(ctx)

	require.Eventually(t, func() bool {
		_, _, ok := poller.Latest()
		return ok
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, StateSynced, poller.State())
}

func TestNewMQTTPublisherUnreachableBroker(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	start := time.Now()
	_, err = NewMQTTPublisher(PublisherConfig{Broker: "tcp://" + addr, ConnectTimeout: time.Second}, zerolog.Nop())
	require.Error(t, err)
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestNewMQTTPublisherSilentBroker(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	accepted := make(chan net.Conn, 4)
	t.Cleanup(func() {
		ln.Close()
		for {
			select {
			case conn := <-accepted:
				conn.Close()
			default:
				return
			}
		}
	})
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			select {
			case accepted <- conn:
			default:
				conn.Close()
			}
		}
	}()

	start := time.Now()
	_, err = NewMQTTPublisher(PublisherConfig{Broker: "tcp://" + ln.Addr().String(), ConnectTimeout: 200 * time.Millisecond}, zerolog.Nop())
	require.Error(t, err)
	require.Less(t, time.Since(start), 5*time.Second)
}
