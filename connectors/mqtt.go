package connectors

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sitincloud/owlyshield-predict/model"
)

// MQTTSink publishes every timestep and kill notification to an MQTT 3.1.1
// broker. No MQTT client library appears anywhere in the retrieval pack
// (checked every go.mod and every other_examples/ file) so this hand-rolls
// the minimal CONNECT/PUBLISH/DISCONNECT subset directly over net.Conn —
// documented in DESIGN.md as the one sink built on the standard library for
// lack of a pack-sourced MQTT dependency. It publishes at QoS 0 (fire and
// forget, matching the worker loop's "never block the hot path" rule) to
// two topics: "owlyshield/<gid>/timestep" and "owlyshield/<gid>/kill".
type MQTTSink struct {
	server   string
	clientID string

	mu       sync.Mutex
	conn     net.Conn
	disabled bool
	lastDial time.Time
}

// NewMQTTSink creates a sink that lazily dials server ("host:port") on first
// publish.
func NewMQTTSink(server, clientID string) *MQTTSink {
	return &MQTTSink{server: server, clientID: clientID}
}

func (m *MQTTSink) Name() string { return "mqtt" }

func (m *MQTTSink) OnStartup(cfg map[string]string) error { return nil }

func (m *MQTTSink) OnTimestep(view model.FamilyView, step model.Timestep) error {
	payload, err := json.Marshal(struct {
		FamilyID uint64          `json:"family_id"`
		AppName  string          `json:"appname"`
		State    string          `json:"state"`
		Features model.Timestep `json:"features"`
	}{view.FamilyID, view.AppName, view.State.String(), step})
	if err != nil {
		return fmt.Errorf("mqtt: marshal: %w", err)
	}
	return m.publish(fmt.Sprintf("owlyshield/%d/timestep", view.FamilyID), payload)
}

func (m *MQTTSink) OnKill(view model.FamilyView, score float32) error {
	payload, err := json.Marshal(struct {
		FamilyID uint64  `json:"family_id"`
		AppName  string  `json:"appname"`
		Score    float32 `json:"score"`
	}{view.FamilyID, view.AppName, score})
	if err != nil {
		return fmt.Errorf("mqtt: marshal: %w", err)
	}
	return m.publish(fmt.Sprintf("owlyshield/%d/kill", view.FamilyID), payload)
}

// publish sends one QoS-0 PUBLISH frame, dialing and handshaking the
// connection on first use (or after a connection loss, with a 10s backoff
// so a downed broker doesn't get hammered once per event).
func (m *MQTTSink) publish(topic string, payload []byte) error {
	if m.server == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.disabled && time.Since(m.lastDial) < 10*time.Second {
		return nil
	}

	if m.conn == nil {
		conn, err := net.DialTimeout("tcp", m.server, 5*time.Second)
		m.lastDial = time.Now()
		if err != nil {
			m.disabled = true
			return fmt.Errorf("mqtt: dial: %w", err)
		}
		if err := mqttConnect(conn, m.clientID); err != nil {
			conn.Close()
			m.disabled = true
			return fmt.Errorf("mqtt: connect: %w", err)
		}
		m.conn = conn
		m.disabled = false
	}

	if err := mqttPublish(m.conn, topic, payload); err != nil {
		m.conn.Close()
		m.conn = nil
		return fmt.Errorf("mqtt: publish: %w", err)
	}
	return nil
}

// Close disconnects cleanly, sending a DISCONNECT control packet.
func (m *MQTTSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return nil
	}
	_, err := m.conn.Write([]byte{0xE0, 0x00})
	closeErr := m.conn.Close()
	m.conn = nil
	if err != nil {
		return err
	}
	return closeErr
}

// mqttConnect writes an MQTT 3.1.1 CONNECT packet and reads the CONNACK,
// failing if the broker reports a non-zero return code.
func mqttConnect(conn net.Conn, clientID string) error {
	var body []byte
	body = append(body, mqttUTF8("MQTT")...)
	body = append(body, 4)    // protocol level 4 = 3.1.1
	body = append(body, 0x02) // clean session
	body = append(body, 0x00, 0x3C) // keep-alive 60s
	body = append(body, mqttUTF8(clientID)...)

	packet := append([]byte{0x10}, mqttRemainingLength(len(body))...)
	packet = append(packet, body...)
	if _, err := conn.Write(packet); err != nil {
		return err
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	defer conn.SetReadDeadline(time.Time{})
	r := bufio.NewReader(conn)
	header, err := r.ReadByte()
	if err != nil {
		return err
	}
	if header>>4 != 2 {
		return fmt.Errorf("unexpected packet type %d, want CONNACK", header>>4)
	}
	if _, err := mqttReadRemainingLength(r); err != nil {
		return err
	}
	flags, err := r.ReadByte()
	_ = flags
	if err != nil {
		return err
	}
	code, err := r.ReadByte()
	if err != nil {
		return err
	}
	if code != 0 {
		return fmt.Errorf("broker refused connection, return code %d", code)
	}
	return nil
}

// mqttPublish writes a QoS-0 PUBLISH packet for topic/payload.
func mqttPublish(conn net.Conn, topic string, payload []byte) error {
	var body []byte
	body = append(body, mqttUTF8(topic)...)
	body = append(body, payload...)

	packet := append([]byte{0x30}, mqttRemainingLength(len(body))...)
	packet = append(packet, body...)
	_, err := conn.Write(packet)
	return err
}

func mqttUTF8(s string) []byte {
	out := make([]byte, 2+len(s))
	out[0] = byte(len(s) >> 8)
	out[1] = byte(len(s))
	copy(out[2:], s)
	return out
}

// mqttRemainingLength encodes n using MQTT's variable-length integer
// encoding (up to 4 bytes, 7 bits per byte, continuation bit set on all but
// the last).
func mqttRemainingLength(n int) []byte {
	var out []byte
	for {
		b := byte(n % 128)
		n /= 128
		if n > 0 {
			b |= 0x80
		}
		out = append(out, b)
		if n == 0 {
			break
		}
	}
	return out
}

func mqttReadRemainingLength(r *bufio.Reader) (int, error) {
	value := 0
	mult := 1
	for i := 0; i < 4; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		value += int(b&0x7F) * mult
		if b&0x80 == 0 {
			return value, nil
		}
		mult *= 128
	}
	return 0, fmt.Errorf("malformed remaining length")
}
