package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/raulk/clock"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/taskcoord/lib/harmony/harmonydb"
)

var machineDDLs = []string{
	`CREATE TABLE IF NOT EXISTS coordination_nodes (
		node_id VARCHAR(255) NOT NULL PRIMARY KEY,
		host_and_port VARCHAR(255) NOT NULL,
		last_contact BIGINT NOT NULL
	)`,
}

// Machines is the database backed Membership: every node keeps a row fresh
// and a node whose row is older than the dead timeout is gone. The live node
// with the lowest id leads.
type Machines struct {
	db        *harmonydb.DB
	clock     clock.Clock
	self      string
	addr      string
	interval  time.Duration
	deadAfter time.Duration

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

var _ Membership = (*Machines)(nil)

// RegisterMachine records this node as alive and starts its heartbeat.
func RegisterMachine(ctx context.Context, db *harmonydb.DB, clk clock.Clock, self, hostAndPort string, heartbeat, deadAfter time.Duration) (*Machines, error) {
	if err := db.ExecSchema(ctx, machineDDLs); err != nil {
		return nil, xerrors.Errorf("creating node table: %w", err)
	}
	m := &Machines{
		db:        db,
		clock:     clk,
		self:      self,
		addr:      hostAndPort,
		interval:  heartbeat,
		deadAfter: deadAfter,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	if err := m.beat(ctx); err != nil {
		return nil, xerrors.Errorf("registering node %s: %w", self, err)
	}
	cleaned := CleanupMachines(ctx, db, clk.Now().Add(-deadAfter))
	log.Infow("registered node", "node", self, "address", hostAndPort, "cleanedUp", cleaned)

	go m.heartbeat()
	return m, nil
}

func (m *Machines) beat(ctx context.Context) error {
	_, err := m.db.Exec(ctx, `INSERT INTO coordination_nodes (node_id, host_and_port, last_contact) VALUES ($1, $2, $3)
		ON CONFLICT (node_id) DO UPDATE SET host_and_port = excluded.host_and_port, last_contact = excluded.last_contact`,
		m.self, m.addr, m.clock.Now().UnixMilli())
	return err
}

func (m *Machines) heartbeat() {
	defer close(m.done)
	ticker := m.clock.Ticker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
		}
		if err := m.beat(context.Background()); err != nil {
			log.Errorw("cannot keepalive", "node", m.self, "error", err)
		}
	}
}

func (m *Machines) LocalNodeID() string {
	return m.self
}

func (m *Machines) LiveNodes(ctx context.Context) ([]string, error) {
	var live []string
	err := m.db.Select(ctx, &live, `SELECT node_id FROM coordination_nodes WHERE last_contact >= $1 ORDER BY node_id`,
		m.clock.Now().Add(-m.deadAfter).UnixMilli())
	if err != nil {
		return nil, xerrors.Errorf("listing live nodes: %w", err)
	}
	return live, nil
}

func (m *Machines) IsLeader(ctx context.Context) (bool, error) {
	live, err := m.LiveNodes(ctx)
	if err != nil {
		return false, err
	}
	return len(live) > 0 && live[0] == m.self, nil
}

// Shutdown stops the heartbeat and removes this node's row so the cluster
// does not wait for the dead timeout.
func (m *Machines) Shutdown(ctx context.Context) error {
	m.stopOnce.Do(func() { close(m.stop) })
	<-m.done
	_, err := m.db.Exec(ctx, `DELETE FROM coordination_nodes WHERE node_id = $1`, m.self)
	return err
}

// CleanupMachines forgets nodes that were last seen before the given time.
func CleanupMachines(ctx context.Context, db *harmonydb.DB, before time.Time) int {
	ct, err := db.Exec(ctx, `DELETE FROM coordination_nodes WHERE last_contact < $1`, before.UnixMilli())
	if err != nil {
		log.Warnw("unable to delete old nodes", "error", err)
	}
	return ct
}
