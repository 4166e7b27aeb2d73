package cluster

import (
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/devrev/designer/internal/errors"
	"github.com/hashicorp/memberlist"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

// NodeMeta is what every member advertises about itself
type NodeMeta struct {
	Role          string `bson:"role"`
	EvaluatorAddr string `bson:"evaluator_addr,omitempty"`
}

// Member is one live node of the cluster
type Member struct {
	Name string
	Addr string
	Meta NodeMeta
}

// Config holds membership configuration
type Config struct {
	NodeName      string
	BindAddr      string
	BindPort      int
	SeedNodes     []string
	Meta          NodeMeta
	ProbeInterval time.Duration
}

// Membership tracks the storage cluster through gossip. The number of live
// members is the node count designs are evaluated against.
type Membership struct {
	config     *Config
	memberlist *memberlist.Memberlist
	meta       []byte
	logger     *zap.Logger
	onChange   func(nodes int)
	live       atomic.Int32
}

// Join starts a gossip member and joins the seed nodes. Failing to reach some
// seeds is logged; failing to reach all of them is an error.
func Join(cfg *Config, onChange func(nodes int), logger *zap.Logger) (*Membership, error) {
	meta, err := bson.Marshal(cfg.Meta)
	if err != nil {
		return nil, errors.InternalError("failed to encode node meta", err)
	}

	m := &Membership{
		config:   cfg,
		meta:     meta,
		logger:   logger,
		onChange: onChange,
	}

	mlConfig := memberlist.DefaultLocalConfig()
	mlConfig.Name = cfg.NodeName
	if cfg.BindAddr != "" {
		mlConfig.BindAddr = cfg.BindAddr
	}
	mlConfig.BindPort = cfg.BindPort
	mlConfig.AdvertisePort = cfg.BindPort
	if cfg.ProbeInterval > 0 {
		mlConfig.ProbeInterval = cfg.ProbeInterval
	}
	mlConfig.Delegate = m
	mlConfig.Events = &eventDelegate{membership: m}
	mlConfig.Logger = zap.NewStdLog(logger.Named("memberlist"))

	ml, err := memberlist.Create(mlConfig)
	if err != nil {
		return nil, errors.Unavailable("failed to create memberlist", err)
	}
	m.memberlist = ml

	if len(cfg.SeedNodes) > 0 {
		joined, err := ml.Join(cfg.SeedNodes)
		if err != nil {
			if joined == 0 {
				_ = ml.Shutdown()
				return nil, errors.Unavailable(fmt.Sprintf("failed to join any of %v", cfg.SeedNodes), err)
			}
			logger.Warn("Failed to join some seed nodes", zap.Error(err))
		}
	}

	logger.Info("Cluster membership started",
		zap.String("node", cfg.NodeName),
		zap.String("addr", ml.LocalNode().Address()),
		zap.Int("members", ml.NumMembers()))
	return m, nil
}

// NodeCount returns the number of live members, this node included
func (m *Membership) NodeCount() int {
	return m.memberlist.NumMembers()
}

// Addr returns the gossip address of this node
func (m *Membership) Addr() string {
	return m.memberlist.LocalNode().Address()
}

// Members returns the live members sorted by name
func (m *Membership) Members() []Member {
	nodes := m.memberlist.Members()
	members := make([]Member, 0, len(nodes))
	for _, n := range nodes {
		member := Member{Name: n.Name, Addr: n.Address()}
		if len(n.Meta) > 0 {
			if err := bson.Unmarshal(n.Meta, &member.Meta); err != nil {
				m.logger.Debug("Ignoring undecodable node meta",
					zap.String("node", n.Name), zap.Error(err))
			}
		}
		members = append(members, member)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Name < members[j].Name })
	return members
}

// Leave announces departure to the cluster and stops gossiping
func (m *Membership) Leave(timeout time.Duration) error {
	if err := m.memberlist.Leave(timeout); err != nil {
		m.logger.Warn("Failed to leave cluster cleanly", zap.Error(err))
	}
	return m.memberlist.Shutdown()
}

// changed runs under memberlist's node lock, so it must not call back into
// the memberlist
func (m *Membership) changed(delta int32) {
	nodes := m.live.Add(delta)
	if m.onChange != nil {
		m.onChange(int(nodes))
	}
}

// NodeMeta implements memberlist.Delegate
func (m *Membership) NodeMeta(limit int) []byte {
	if len(m.meta) > limit {
		m.logger.Warn("Node meta exceeds limit, not advertised", zap.Int("size", len(m.meta)), zap.Int("limit", limit))
		return nil
	}
	return m.meta
}

// NotifyMsg implements memberlist.Delegate
func (m *Membership) NotifyMsg([]byte) {}

// GetBroadcasts implements memberlist.Delegate
func (m *Membership) GetBroadcasts(overhead, limit int) [][]byte {
	return nil
}

// LocalState implements memberlist.Delegate
func (m *Membership) LocalState(join bool) []byte {
	return nil
}

// MergeRemoteState implements memberlist.Delegate
func (m *Membership) MergeRemoteState(buf []byte, join bool) {}

type eventDelegate struct {
	membership *Membership
}

// NotifyJoin is called when a node joins
func (d *eventDelegate) NotifyJoin(node *memberlist.Node) {
	d.membership.logger.Info("Node joined",
		zap.String("node", node.Name),
		zap.String("addr", node.Address()))
	d.membership.changed(1)
}

// NotifyLeave is called when a node leaves
func (d *eventDelegate) NotifyLeave(node *memberlist.Node) {
	d.membership.logger.Info("Node left",
		zap.String("node", node.Name))
	d.membership.changed(-1)
}

// NotifyUpdate is called when a node is updated
func (d *eventDelegate) NotifyUpdate(node *memberlist.Node) {
	d.membership.logger.Debug("Node updated",
		zap.String("node", node.Name))
}
