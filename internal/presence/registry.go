// Package presence tracks which nodes of a training mesh are alive: the
// runtime itself plus any capture or playback nodes joined over the bus.
package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stimmlabs/stimm-core/internal/bus"
	"github.com/stimmlabs/stimm-core/internal/config"
	"github.com/stimmlabs/stimm-core/internal/protocol"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// NodeInfo is the registry's view of one node.
type NodeInfo struct {
	ID       string    `json:"id"`
	Role     string    `json:"role"`
	LastSeen time.Time `json:"last_seen"`
	Healthy  bool      `json:"healthy"`
}

type Registry struct {
	cfg       config.NodeConfig
	log       *slog.Logger
	bus       *bus.Client
	mu        sync.RWMutex
	nodes     map[string]*NodeInfo
	heartbeat *time.Ticker
	cancel    context.CancelFunc
	subs      []*nats.Subscription
	meter     metric.Meter
}

func NewRegistry(ctx context.Context, cfg config.NodeConfig, busClient *bus.Client, log *slog.Logger) (*Registry, error) {
	ctx, cancel := context.WithCancel(ctx)
	r := &Registry{
		cfg:    cfg,
		log:    log.With(slog.String("component", "presence")),
		bus:    busClient,
		nodes:  make(map[string]*NodeInfo),
		meter:  otel.Meter("github.com/stimmlabs/stimm-core/runtime"),
		cancel: cancel,
	}

	if err := r.initMetrics(); err != nil {
		r.log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	}

	if err := r.subscribe(); err != nil {
		r.cancel()
		return nil, err
	}

	r.heartbeat = time.NewTicker(time.Duration(cfg.HeartbeatInterval) * time.Millisecond)
	go r.runHeartbeat(ctx)
	go r.monitorHealth(ctx)

	if err := r.announce(); err != nil {
		r.log.Warn("failed to announce node", slog.String("error", err.Error()))
	}

	return r, nil
}

func (r *Registry) Close() {
	if r.cancel != nil {
		r.cancel()
	}
	if r.heartbeat != nil {
		r.heartbeat.Stop()
	}
	for _, sub := range r.subs {
		_ = sub.Drain()
	}
}

func (r *Registry) subscribe() error {
	conn := r.bus.Conn()
	announceSub, err := conn.Subscribe(protocol.SubjectNodeAnnounce, r.handleAnnounce)
	if err != nil {
		return fmt.Errorf("subscribe announce: %w", err)
	}
	r.subs = append(r.subs, announceSub)

	heartbeatSub, err := conn.Subscribe(protocol.SubjectNodeHeartbeat+".*", r.handleHeartbeat)
	if err != nil {
		return fmt.Errorf("subscribe heartbeat: %w", err)
	}
	r.subs = append(r.subs, heartbeatSub)

	return nil
}

func (r *Registry) runHeartbeat(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.heartbeat.C:
			if err := r.publishHeartbeat(); err != nil {
				r.log.Warn("failed to publish heartbeat", slog.String("error", err.Error()))
			}
		}
	}
}

func (r *Registry) monitorHealth(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.evaluateHealth()
		}
	}
}

func (r *Registry) announce() error {
	msg := protocol.NodeAnnounce{
		NodeID:    r.cfg.ID,
		Role:      r.cfg.Role,
		Timestamp: time.Now().UTC(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := r.bus.Conn().Publish(protocol.SubjectNodeAnnounce, payload); err != nil {
		return err
	}
	r.updateNode(msg.NodeID, msg.Role, msg.Timestamp)
	return nil
}

func (r *Registry) publishHeartbeat() error {
	msg := protocol.NodeHeartbeat{
		NodeID:    r.cfg.ID,
		Timestamp: time.Now().UTC(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("%s.%s", protocol.SubjectNodeHeartbeat, r.cfg.ID)
	return r.bus.Conn().Publish(subject, payload)
}

func (r *Registry) handleAnnounce(msg *nats.Msg) {
	var announcement protocol.NodeAnnounce
	if err := json.Unmarshal(msg.Data, &announcement); err != nil {
		r.log.Warn("invalid announce message", slog.String("error", err.Error()))
		return
	}
	if announcement.Timestamp.IsZero() {
		announcement.Timestamp = time.Now().UTC()
	}
	r.updateNode(announcement.NodeID, announcement.Role, announcement.Timestamp)
}

func (r *Registry) handleHeartbeat(msg *nats.Msg) {
	var hb protocol.NodeHeartbeat
	if err := json.Unmarshal(msg.Data, &hb); err != nil {
		r.log.Warn("invalid heartbeat message", slog.String("error", err.Error()))
		return
	}
	if hb.Timestamp.IsZero() {
		hb.Timestamp = time.Now().UTC()
	}
	r.updateNode(hb.NodeID, "", hb.Timestamp)
}

func (r *Registry) updateNode(nodeID, role string, timestamp time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	node, ok := r.nodes[nodeID]
	if !ok {
		node = &NodeInfo{ID: nodeID}
		r.nodes[nodeID] = node
	}
	if role != "" {
		node.Role = role
	}
	node.LastSeen = timestamp
	node.Healthy = true
}

func (r *Registry) evaluateHealth() {
	r.mu.Lock()
	defer r.mu.Unlock()

	timeout := time.Duration(r.cfg.HeartbeatTimeout) * time.Millisecond
	now := time.Now()
	for _, node := range r.nodes {
		if now.Sub(node.LastSeen) > timeout {
			node.Healthy = false
		}
	}
}

func (r *Registry) Healthy() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	node, ok := r.nodes[r.cfg.ID]
	if !ok {
		return false
	}
	return node.Healthy
}

// Query returns a snapshot of the nodes matching the filter, all nodes when
// the filter is nil.
func (r *Registry) Query(filter func(NodeInfo) bool) []NodeInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []NodeInfo
	for _, node := range r.nodes {
		copy := *node
		if filter == nil || filter(copy) {
			results = append(results, copy)
		}
	}
	return results
}

// WithRoleFilter matches nodes serving one role, e.g. "capture".
func WithRoleFilter(role string) func(NodeInfo) bool {
	return func(node NodeInfo) bool {
		return node.Role == role
	}
}

func (r *Registry) initMetrics() error {
	if r.meter == nil {
		return nil
	}
	nodeGauge, err := r.meter.Int64ObservableGauge("stimm.presence.nodes",
		metric.WithDescription("Number of known nodes"))
	if err != nil {
		return err
	}
	healthyGauge, err := r.meter.Int64ObservableGauge("stimm.presence.healthy",
		metric.WithDescription("Number of nodes with a fresh heartbeat"))
	if err != nil {
		return err
	}
	_, err = r.meter.RegisterCallback(func(ctx context.Context, obs metric.Observer) error {
		nodes, healthy := r.snapshotCounts()
		obs.ObserveInt64(nodeGauge, nodes)
		obs.ObserveInt64(healthyGauge, healthy)
		return nil
	}, nodeGauge, healthyGauge)
	return err
}

func (r *Registry) snapshotCounts() (int64, int64) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var nodes int64
	var healthy int64
	for _, node := range r.nodes {
		nodes++
		if node.Healthy {
			healthy++
		}
	}
	return nodes, healthy
}
