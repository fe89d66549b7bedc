package publish

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/require"

	"github.com/joshp123/smartmeter/internal/config"
)

type fakeToken struct {
	done bool
	err  error
}

func (t fakeToken) Wait() bool { return t.done }
func (t fakeToken) WaitTimeout(time.Duration) bool { return t.done }
func (t fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t fakeToken) Error() error { return t.err }

type published struct {
	topic   string
	retain  bool
	payload []byte
}

type fakeClient struct {
	token        fakeToken
	messages     []published
	disconnected bool
}

func (c *fakeClient) Publish(topic string, _ byte, retained bool, payload interface{}) mqtt.Token {
	c.messages = append(c.messages, published{topic: topic, retain: retained, payload: payload.([]byte)})
	return c.token
}

func (c *fakeClient) Disconnect(uint) {
	c.disconnected = true
}

func TestPublish(t *testing.T) {
	fc := &fakeClient{token: fakeToken{done: true}}
	p := &Publisher{client: fc, topic: "smartmeter/p1", retain: true}

	require.NoError(t, p.Publish([]byte(`{"eNow":300}`)))
	require.Equal(t, []published{{topic: "smartmeter/p1", retain: true, payload: []byte(`{"eNow":300}`)}}, fc.messages)

	p.Close()
	require.True(t, fc.disconnected)
}

func TestPublishErrors(t *testing.T) {
	p := &Publisher{client: &fakeClient{token: fakeToken{done: false}}, topic: "t"}
	require.ErrorContains(t, p.Publish(nil), "timed out")

	p = &Publisher{client: &fakeClient{token: fakeToken{done: true, err: errors.New("not connected")}}, topic: "t"}
	require.ErrorContains(t, p.Publish(nil), "not connected")
}

func TestClientOptions(t *testing.T) {
	password := filepath.Join(t.TempDir(), "password")
	require.NoError(t, os.WriteFile(password, []byte("hunter2\n"), 0o600))

	opts, err := clientOptions(&config.MQTTConfig{
		Broker:       "tcp://broker:1883",
		ClientID:     "meter",
		Username:     "p1",
		PasswordFile: password,
	})
	require.NoError(t, err)
	require.Len(t, opts.Servers, 1)
	require.Equal(t, "broker:1883", opts.Servers[0].Host)
	require.Equal(t, "meter", opts.ClientID)
	require.Equal(t, "p1", opts.Username)
	require.Equal(t, "hunter2", opts.Password)

	_, err = clientOptions(&config.MQTTConfig{})
	require.Error(t, err)
	_, err = clientOptions(&config.MQTTConfig{Broker: "tcp://b:1883", PasswordFile: filepath.Join(t.TempDir(), "none")})
	require.Error(t, err)
}
