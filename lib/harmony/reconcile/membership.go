package reconcile

import (
	"context"
	"sort"

	"github.com/samber/lo"
)

// Membership tells the driver which nodes are alive and whether this node
// leads the cluster.
type Membership interface {
	LocalNodeID() string
	IsLeader(ctx context.Context) (bool, error)
	LiveNodes(ctx context.Context) ([]string, error)
}

// StaticMembership is a fixed member list with a configured leader.
type StaticMembership struct {
	self    string
	leader  bool
	members []string
}

func NewStaticMembership(self string, leader bool, members []string) *StaticMembership {
	live := lo.Uniq(append(append([]string(nil), members...), self))
	sort.Strings(live)
	return &StaticMembership{self: self, leader: leader, members: live}
}

func (m *StaticMembership) LocalNodeID() string {
	return m.self
}

func (m *StaticMembership) IsLeader(context.Context) (bool, error) {
	return m.leader, nil
}

func (m *StaticMembership) LiveNodes(context.Context) ([]string, error) {
	return append([]string(nil), m.members...), nil
}
