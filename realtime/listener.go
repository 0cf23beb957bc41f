package realtime

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/TerryMooreII/rss-reader/models"
)

// Add Prometheus metrics
var (
	wsConnectionAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rssreader_realtime_connection_attempts_total",
		Help: "The total number of connection attempts to the change-stream websocket",
	})

	wsConnectionErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rssreader_realtime_connection_errors_total",
		Help: "The total number of connection errors encountered",
	})

	wsCurrentConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rssreader_realtime_current_connections",
		Help: "The current number of active change-stream websocket connections",
	})

	wsConnectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rssreader_realtime_connection_duration_seconds",
		Help:    "Duration of change-stream websocket connections",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10), // Start at 1s, double each bucket, 10 buckets
	})

	wsPingLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rssreader_realtime_ping_latency_seconds",
		Help:    "Latency of websocket ping/pong round trips",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 10), // Start at 1ms, double each bucket, 10 buckets
	})

	wsHostSwitches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rssreader_realtime_host_switches_total",
		Help: "Number of times the connection switched to a different host",
	}, []string{"from_host", "to_host"})

	wsChangesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rssreader_realtime_changes_total",
		Help: "The total number of change frames received by change type",
	}, []string{"type"})
)

const (
	wsReadBufferSize  = 64 * 1024 // 64KB, change frames carry single rows
	wsWriteBufferSize = 1024      // 1KB
	wsReadTimeout     = 60 * time.Second
	wsWriteTimeout    = 10 * time.Second
	wsPingInterval    = 30 * time.Second
)

// Config holds configuration for the change-stream connection.
type Config struct {
	// Hosts is a list of stream endpoints to try in order,
	// e.g. ["wss://reader.example.com"]
	Hosts     []string
	APIKey    string
	Token     string
	Table     string
	UserAgent string
	Workers   int
	QueueSize int
}

// Listener maintains a websocket subscription to the backend change stream
// and hands decoded row changes to the handler. It reconnects forever; only a
// cancelled context stops it.
type Listener struct {
	config  Config
	queue   chan *RawFrame
	handler func(models.ChangeEvent)
}

func NewListener(config Config, handler func(models.ChangeEvent)) *Listener {
	if config.Table == "" {
		config.Table = "entries"
	}
	if config.Workers <= 0 {
		config.Workers = 4
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 256
	}
	return &Listener{
		config:  config,
		queue:   make(chan *RawFrame, config.QueueSize),
		handler: handler,
	}
}

// Run connects and consumes the stream until ctx is cancelled. A dropped
// connection is re-dialed with the same backoff and failover as the initial
// dial.
func (l *Listener) Run(ctx context.Context) error {
	l.startWorkers(ctx)

	for {
		conn, err := l.connect(ctx)
		if err != nil {
			return err
		}

		l.read(ctx, conn)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("Change stream disconnected, reconnecting")
	}
}

// connect establishes a websocket connection to the first host that answers,
// rotating through the configured hosts with exponential backoff in between
// full rounds. It only returns an error when the context is cancelled.
func (l *Listener) connect(ctx context.Context) (*websocket.Conn, error) {
	log.WithFields(log.Fields{
		"hosts": l.config.Hosts,
		"table": l.config.Table,
	}).Info("Subscribing to change stream")

	if len(l.config.Hosts) == 0 {
		return nil, fmt.Errorf("no hosts provided in config")
	}

	currentHostIdx := 0

	// Configure websocket dialer
	dialer := websocket.Dialer{
		ReadBufferSize:   wsReadBufferSize,
		WriteBufferSize:  wsWriteBufferSize,
		HandshakeTimeout: 45 * time.Second,
		NetDialContext: (&net.Dialer{
			Timeout:   45 * time.Second,
			KeepAlive: 45 * time.Second,
		}).DialContext,
	}

	// Set up exponential backoff for reconnection attempts
	backoff := backoff.NewExponentialBackOff()
	backoff.InitialInterval = 100 * time.Millisecond
	backoff.MaxInterval = 30 * time.Second
	backoff.Multiplier = 1.5
	backoff.MaxElapsedTime = 0 // Never stop retrying

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
			currentHost := l.config.Hosts[currentHostIdx]

			u, err := url.Parse(fmt.Sprintf("%s/realtime/v1/stream", currentHost))
			if err != nil {
				return nil, fmt.Errorf("failed to parse URL: %w", err)
			}

			q := u.Query()
			q.Set("apikey", l.config.APIKey)
			q.Set("table", l.config.Table)
			u.RawQuery = q.Encode()

			headers := http.Header{}
			if l.config.UserAgent != "" {
				headers.Set("User-Agent", l.config.UserAgent)
			}
			if l.config.Token != "" {
				headers.Set("Authorization", "Bearer "+l.config.Token)
			}

			wsConnectionAttempts.Inc()

			conn, _, dialErr := dialer.DialContext(ctx, u.String(), headers)
			if dialErr != nil {
				wsConnectionErrors.Inc()
				log.Errorf("Error connecting to change stream host %s: %s", currentHost, dialErr)

				// Try next host
				nextHostIdx := (currentHostIdx + 1) % len(l.config.Hosts)
				if nextHostIdx != currentHostIdx {
					wsHostSwitches.WithLabelValues(currentHost, l.config.Hosts[nextHostIdx]).Inc()
					log.Infof("Switching from host %s to %s", currentHost, l.config.Hosts[nextHostIdx])
					currentHostIdx = nextHostIdx
					// Reset backoff when switching hosts
					backoff.Reset()
					continue
				}

				time.Sleep(backoff.NextBackOff())
				continue
			}

			setupConnectionHandlers(conn)
			return conn, nil
		}
	}
}

// read consumes frames until the connection dies or ctx is cancelled. The
// connection is closed on the way out, which also stops the ping routine.
func (l *Listener) read(ctx context.Context, conn *websocket.Conn) {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer conn.Close()

	wsCurrentConnections.Inc()
	connStart := time.Now()
	defer func() {
		wsConnectionDuration.Observe(time.Since(connStart).Seconds())
		wsCurrentConnections.Dec()
	}()

	// Start ping routine
	go managePingPong(connCtx, conn)

	// Unblock ReadMessage when the context ends
	go func() {
		<-connCtx.Done()
		conn.Close()
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Errorf("Unexpected change stream close: %v", err)
			}
			wsConnectionErrors.Inc()
			return
		}

		select {
		case <-connCtx.Done():
			return
		case l.queue <- &RawFrame{Data: message}:
		}
	}
}

// setupConnectionHandlers configures the websocket connection handlers
func setupConnectionHandlers(conn *websocket.Conn) {
	// Set initial deadlines
	conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))

	conn.SetCloseHandler(func(code int, text string) error {
		log.Infof("WebSocket connection closed with code %d: %s", code, text)
		return nil
	})

	conn.SetPingHandler(func(appData string) error {
		log.Debug("Received ping from server")
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	conn.SetPongHandler(func(appData string) error {
		log.Debug("Received pong from server")
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})
}

// managePingPong handles the ping/pong keepalive for the websocket connection
func managePingPong(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingStart := time.Now()
			log.Debug("Sending ping to check connection")

			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(wsWriteTimeout)); err != nil {
				log.Warn("Ping failed, closing connection for restart: ", err)
				wsConnectionErrors.Inc()
				conn.Close()
				return
			}

			// Measure ping latency when we receive the pong
			conn.SetPongHandler(func(appData string) error {
				wsPingLatency.Observe(time.Since(pingStart).Seconds())
				return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
			})

			// Reset read deadline after successful ping
			if err := conn.SetReadDeadline(time.Now().Add(wsReadTimeout)); err != nil {
				log.Warn("Failed to set read deadline, closing connection: ", err)
				wsConnectionErrors.Inc()
				conn.Close()
				return
			}
		}
	}
}
