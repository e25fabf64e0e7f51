// Package realtime owns the shared transport connection and the room
// membership protocol layered on top of it.
package realtime

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/examportal/realtime-platform/internal/model"
	"github.com/examportal/realtime-platform/pkg/logger"
	"github.com/examportal/realtime-platform/pkg/metrics"
)

// State is the lifecycle state of the shared connection.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// Reconnect policy for the shared connection. Delay grows linearly from the
// initial value and never exceeds the cap.
const (
	maxReconnectAttempts  = 5
	reconnectInitialDelay = 1 * time.Second
	reconnectMaxDelay     = 5 * time.Second
)

// Config holds transport connection configuration.
type Config struct {
	URL      string
	CAFile   string
	CertFile string
	KeyFile  string
	Token    string
}

// Subscription is a disposer for one consumer's event callback. Unsubscribing
// removes exactly that callback; it never affects another consumer's
// subscriptions and never tears down the shared connection.
type Subscription interface {
	Unsubscribe() error
}

// transport is the subset of the underlying connection the manager uses.
// *nats.Conn is the production implementation; tests substitute a fake.
type transport interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, handler func(data []byte)) (Subscription, error)
	IsConnected() bool
	IsClosed() bool
	Close()
}

type dialFunc func(url string, opts ...nats.Option) (transport, error)

// Manager owns the process-wide shared connection. It is created once by the
// application root and injected into every consumer; Acquire is idempotent so
// concurrent consumer mounts never open a second physical connection.
type Manager struct {
	cfg  Config
	log  *logger.Logger
	dial dialFunc

	mu           sync.Mutex
	tr           transport
	state        State
	onConnect    []func()
	onDisconnect []func()

	rooms *Membership
}

// NewManager creates the shared connection manager. No connection is dialed
// until the first Acquire.
func NewManager(cfg Config, log *logger.Logger) *Manager {
	m := &Manager{
		cfg:   cfg,
		log:   log,
		dial:  natsDial,
		state: StateDisconnected,
	}
	m.rooms = newMembership(m, log)
	m.onConnect = append(m.onConnect, m.rooms.handleConnect)
	m.onDisconnect = append(m.onDisconnect, m.rooms.handleDisconnect)
	return m
}

// Rooms returns the room membership layer bound to this connection.
func (m *Manager) Rooms() *Membership {
	return m.rooms
}

// Join joins a room on the shared connection. See Membership.Join.
func (m *Manager) Join(room Room, identity model.Identity) {
	m.rooms.Join(room, identity)
}

// Leave leaves a room on the shared connection. See Membership.Leave.
func (m *Manager) Leave(room Room) {
	m.rooms.Leave(room)
}

// Acquire ensures the shared physical connection exists, creating it on the
// first call. While a connection is connecting or connected the held one is
// reused; a terminally closed connection is discarded and a fresh one dialed.
// There is no matching release: consumers that stop listening unsubscribe
// their own callbacks and leave the transport alone.
func (m *Manager) Acquire() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.tr != nil && !m.tr.IsClosed() {
		return nil
	}

	m.state = StateConnecting

	tr, err := m.dial(m.cfg.URL, m.natsOptions()...)
	if err != nil {
		m.state = StateDisconnected
		return fmt.Errorf("failed to dial transport: %w", err)
	}

	m.tr = tr
	if tr.IsConnected() {
		m.state = StateConnected
	}
	return nil
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsConnected reports whether the shared connection is currently established.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tr != nil && m.tr.IsConnected()
}

// Subscribe registers a callback for a named event on a room. The returned
// Subscription is the caller's disposer; events that fail to decode are
// dropped.
func (m *Manager) Subscribe(room Room, event string, handler func(model.Event)) (Subscription, error) {
	m.mu.Lock()
	tr := m.tr
	m.mu.Unlock()

	if tr == nil {
		return nil, fmt.Errorf("transport not acquired")
	}

	return tr.Subscribe(Subject(room, event), func(data []byte) {
		metrics.EventsReceivedTotal.WithLabelValues(event).Inc()

		var evt model.Event
		if err := json.Unmarshal(data, &evt); err != nil {
			m.log.Debug("dropping undecodable event",
				zap.String("event", event),
				zap.Error(err),
			)
			return
		}
		handler(evt)
	})
}

// Publish marshals v and publishes it on subject. Used by the membership
// layer for control events and by SendMessage.
func (m *Manager) Publish(subject string, v any) error {
	m.mu.Lock()
	tr := m.tr
	m.mu.Unlock()

	if tr == nil {
		return fmt.Errorf("transport not acquired")
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	return tr.Publish(subject, data)
}

// SendMessage publishes an outbound support message. Content that trims to
// empty is a no-op. There is no client-side queue for outbound sends: when
// the connection is down the message is dropped with a warning.
func (m *Manager) SendMessage(msg model.OutboundMessage) {
	if strings.TrimSpace(msg.Content) == "" {
		return
	}

	if !m.IsConnected() {
		m.log.Warn("dropping outbound message: not connected",
			zap.String("participant_id", msg.ParticipantID),
		)
		metrics.SendsDroppedTotal.Inc()
		return
	}

	evt := model.Event{
		Kind:               model.KindMessage,
		ParticipantID:      msg.ParticipantID,
		Role:               msg.Role,
		DisplayName:        msg.DisplayName,
		Content:            msg.Content,
		ConversationTarget: msg.ConversationTarget,
		Timestamp:          time.Now().UnixMilli(),
	}

	if err := m.Publish(Subject(SupportChatRoom(), EventSupportMessage), evt); err != nil {
		m.log.Warn("failed to publish outbound message", zap.Error(err))
	}
}

// natsOptions builds the option set registering exactly one set of lifecycle
// handlers per physical connection.
func (m *Manager) natsOptions() []nats.Option {
	opts := []nats.Option{
		nats.MaxReconnects(maxReconnectAttempts),
		nats.ReconnectWait(reconnectInitialDelay),
		nats.RetryOnFailedConnect(true),
		nats.CustomReconnectDelay(func(attempts int) time.Duration {
			delay := reconnectInitialDelay * time.Duration(attempts)
			if delay < reconnectInitialDelay {
				delay = reconnectInitialDelay
			}
			if delay > reconnectMaxDelay {
				delay = reconnectMaxDelay
			}
			return delay
		}),
		nats.ConnectHandler(func(_ *nats.Conn) {
			m.handleConnect()
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			metrics.ReconnectsTotal.Inc()
			m.handleConnect()
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			m.handleDisconnect(err)
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			m.handleClosed()
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			m.log.Error("transport error", zap.Error(err))
		}),
	}

	if m.cfg.CAFile != "" && m.cfg.CertFile != "" && m.cfg.KeyFile != "" {
		tlsConfig, err := NewTLSConfig(m.cfg.CAFile, m.cfg.CertFile, m.cfg.KeyFile)
		if err != nil {
			m.log.Error("failed to create TLS config", zap.Error(err))
		} else {
			opts = append(opts, nats.Secure(tlsConfig))
		}
	}

	if m.cfg.Token != "" {
		opts = append(opts, nats.Token(m.cfg.Token))
	}

	return opts
}

func (m *Manager) handleConnect() {
	m.mu.Lock()
	m.state = StateConnected
	listeners := append([]func(){}, m.onConnect...)
	m.mu.Unlock()

	m.log.Info("transport connected")
	for _, f := range listeners {
		f()
	}
}

func (m *Manager) handleDisconnect(err error) {
	m.mu.Lock()
	m.state = StateConnecting
	listeners := append([]func(){}, m.onDisconnect...)
	m.mu.Unlock()

	m.log.Warn("transport disconnected", zap.Error(err))
	for _, f := range listeners {
		f()
	}
}

func (m *Manager) handleClosed() {
	m.mu.Lock()
	m.state = StateDisconnected
	m.mu.Unlock()

	m.log.Warn("transport closed, reconnect attempts exhausted")
}

// natsTransport adapts *nats.Conn to the transport interface.
type natsTransport struct {
	nc *nats.Conn
}

func natsDial(url string, opts ...nats.Option) (transport, error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	return &natsTransport{nc: nc}, nil
}

func (t *natsTransport) Publish(subject string, data []byte) error {
	return t.nc.Publish(subject, data)
}

func (t *natsTransport) Subscribe(subject string, handler func(data []byte)) (Subscription, error) {
	return t.nc.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

func (t *natsTransport) IsConnected() bool {
	return t.nc.IsConnected()
}

func (t *natsTransport) IsClosed() bool {
	return t.nc.IsClosed()
}

func (t *natsTransport) Close() {
	t.nc.Close()
}

// NewTLSConfig builds a mutual-TLS client configuration from PEM files.
func NewTLSConfig(caFile, certFile, keyFile string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA file: %w", err)
	}

	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to parse CA certificate")
	}

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load client cert: %w", err)
	}

	return &tls.Config{
		RootCAs:      caCertPool,
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
