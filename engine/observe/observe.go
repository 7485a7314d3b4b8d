// Package observe exposes the running simulation to the outside: a
// websocket stream of state snapshots and a prometheus metrics endpoint.
// Everything here is pull-only; the observer never mutates the game.
package observe

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hexfief/serf-engine/engine/core"
)

// Snapshot is one state frame pushed to websocket clients.
type Snapshot struct {
	GameID    string       `json:"game_id"`
	Tick      uint32       `json:"tick"`
	Flags     int          `json:"flags"`
	Buildings int          `json:"buildings"`
	Serfs     int          `json:"serfs"`
	GoldTotal int          `json:"gold_total"`
	Players   []PlayerView `json:"players"`
}

// PlayerView is the per-player slice of a snapshot.
type PlayerView struct {
	Index    int `json:"index"`
	Land     int `json:"land"`
	Morale   int `json:"morale"`
	Military int `json:"military"`
	Gold     int `json:"gold"`
}

// Server streams snapshots and serves metrics.
type Server struct {
	game     *core.Game
	logger   *slog.Logger
	interval time.Duration
	upgrader websocket.Upgrader

	reg          *prometheus.Registry
	tickGauge    prometheus.Gauge
	entityGauge  *prometheus.GaugeVec
	landGauge    *prometheus.GaugeVec
	moraleGauge  *prometheus.GaugeVec
}

// NewServer wires the metrics registry and snapshot loop.
func NewServer(g *core.Game, interval time.Duration, logger *slog.Logger) *Server {
	if logger == nil {
		logger = g.Logger()
	}
	s := &Server{
		game:     g,
		logger:   logger,
		interval: interval,
		reg:      prometheus.NewRegistry(),
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
	s.tickGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "serfengine_tick_total", Help: "Monotonic simulation tick.",
	})
	s.entityGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "serfengine_entities", Help: "Live entity counts.",
	}, []string{"kind"})
	s.landGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "serfengine_player_land", Help: "Owned cells per player.",
	}, []string{"player"})
	s.moraleGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "serfengine_player_morale", Help: "Knight morale per player.",
	}, []string{"player"})
	s.reg.MustRegister(s.tickGauge, s.entityGauge, s.landGauge, s.moraleGauge)
	return s
}

// snapshot reads the game under its lock.
func (s *Server) snapshot() Snapshot {
	g := s.game
	g.Lock()
	defer g.Unlock()
	flags, buildings, _, serfs := g.Counts()
	snap := Snapshot{
		GameID:    g.ID.String(),
		Tick:      g.TickTotal,
		Flags:     flags,
		Buildings: buildings,
		Serfs:     serfs,
		GoldTotal: g.GoldTotal,
	}
	for i := 0; i < core.MaxPlayers; i++ {
		p := g.Player(i)
		if !p.IsActive() {
			continue
		}
		snap.Players = append(snap.Players, PlayerView{
			Index: i, Land: p.LandArea, Morale: p.KnightMorale,
			Military: p.TotalMilitaryScore, Gold: p.GoldDeposited,
		})
	}
	s.tickGauge.Set(float64(snap.Tick))
	s.entityGauge.WithLabelValues("flags").Set(float64(flags))
	s.entityGauge.WithLabelValues("buildings").Set(float64(buildings))
	s.entityGauge.WithLabelValues("serfs").Set(float64(serfs))
	for _, pv := range snap.Players {
		label := string(rune('0' + pv.Index))
		s.landGauge.WithLabelValues(label).Set(float64(pv.Land))
		s.moraleGauge.WithLabelValues(label).Set(float64(pv.Morale))
	}
	return snap
}

// handleWS upgrades a client and pushes snapshots on the interval.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for range ticker.C {
		data, err := json.Marshal(s.snapshot())
		if err != nil {
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

// ListenAndServe blocks serving /ws and /metrics until the context ends.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.Handle("/metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()
	s.logger.Info("observer listening", "addr", addr)
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}
