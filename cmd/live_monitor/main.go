// Live monitor samples instantaneous power from every active device on a
// fast cadence, keeps a sliding observation window in memory and pushes
// each sample to connected websocket clients. Nothing here touches the
// readings database; a restart starts with an empty window.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/dvhome/house_energy_monitor/pkg/config"
	"github.com/dvhome/house_energy_monitor/pkg/deviceclient"
	"github.com/dvhome/house_energy_monitor/pkg/livebuffer"
	"github.com/dvhome/house_energy_monitor/pkg/logging"
	"github.com/dvhome/house_energy_monitor/pkg/pathing"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development
	},
}

// ws clients for broadcasting live samples
var (
	wsClients      = make(map[*websocket.Conn]bool)
	wsClientsMutex sync.RWMutex
)

func main() {
	configPath := flag.String("config", pathing.GetCollectorConfigPath(), "path to collector.toml")
	flag.Parse()

	cfg, err := config.LoadCollectorConfig(*configPath)
	if err != nil {
		cfg = config.DefaultCollectorConfig()
	}
	log := logging.Setup(cfg.Logging)
	if err != nil {
		log.Warn().Err(err).Str("path", *configPath).Msg("Config load failed, using defaults")
	}

	buffer := livebuffer.New(cfg.ObservationWindow(), cfg.LivePollInterval())
	client := deviceclient.NewClient()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go sampleLoop(ctx, cfg, client, buffer, log)

	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"message":    "House Energy Live Monitor",
			"status":     "running",
			"max_points": buffer.MaxPoints(),
		})
	})

	http.HandleFunc("/live", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if deviceID := r.URL.Query().Get("device_id"); deviceID != "" {
			json.NewEncoder(w).Encode(buffer.Snapshot(deviceID))
			return
		}
		json.NewEncoder(w).Encode(buffer.SnapshotAll())
	})

	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Msg("WebSocket upgrade error")
			return
		}

		addWebSocketClient(conn)

		// Keep connection alive
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				removeWebSocketClient(conn)
				break
			}
		}
	})

	listener := fmt.Sprintf("%s:%d", cfg.Live.ListenAddress, cfg.Live.ListenPort)
	server := &http.Server{Addr: listener}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Info().Str("listener", listener).Msg("Starting live monitor")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("Live monitor server failed")
	}
	log.Info().Msg("Live monitor stopped")
}

// sampleLoop polls active devices for instantaneous power on the fast
// cadence. No retries: a missed sample is an acceptable gap in the window.
func sampleLoop(ctx context.Context, cfg *config.CollectorConfig, client *deviceclient.Client, buffer *livebuffer.Buffer, log zerolog.Logger) {
	ticker := time.NewTicker(cfg.LivePollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for _, dev := range cfg.ActiveDevices() {
			power, err := client.ReadPower(ctx, &dev)
			if err != nil {
				log.Debug().Str("device_id", dev.ID).Err(err).Msg("Missed live sample")
				continue
			}

			now := time.Now()
			buffer.Append(dev.ID, now, power)
			broadcastSample(livebuffer.Sample{
				DeviceID:    dev.ID,
				TimestampMs: now.UnixMilli(),
				PowerW:      power,
			})
		}
	}
}

func broadcastSample(sample livebuffer.Sample) {
	wsClientsMutex.RLock()
	clients := make([]*websocket.Conn, 0, len(wsClients))
	for client := range wsClients {
		clients = append(clients, client)
	}
	wsClientsMutex.RUnlock()

	data, err := json.Marshal(sample)
	if err != nil {
		return
	}

	for _, client := range clients {
		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			removeWebSocketClient(client)
		}
	}
}

func addWebSocketClient(conn *websocket.Conn) {
	wsClientsMutex.Lock()
	wsClients[conn] = true
	wsClientsMutex.Unlock()
}

func removeWebSocketClient(conn *websocket.Conn) {
	wsClientsMutex.Lock()
	delete(wsClients, conn)
	wsClientsMutex.Unlock()
	conn.Close()
}
