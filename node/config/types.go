package config

// TaskCoord is the configuration of a task coordination node.
type TaskCoord struct {
	Node         Node
	Coordination Coordination
	HarmonyDB    HarmonyDB

	// Tasks are the task definitions deployed on this node. Every node of
	// a cluster is expected to carry the same list.
	Tasks []TaskDefinition `ignored:"true"`
}

type Node struct {
	// ID identifies this node in the owner column of the task table.
	// When empty a random id is generated at startup, which means tasks
	// owned by a previous incarnation of the node will only be released
	// by the cluster leader.
	ID string

	// ListenAddress is the host:port the admin API listens on.
	ListenAddress string

	// DataDir holds the local task repository (paused flags and task infos).
	DataDir string
}

type Coordination struct {
	// Enabled turns on cluster coordination. When false every task is
	// scheduled locally and the task table is never touched.
	Enabled bool

	// Membership selects how live nodes are found: "static" uses Members
	// and Leader below, "db" makes nodes heartbeat into the database and
	// the live node with the lowest id leads.
	Membership string

	// Leader marks this node as the one resolving unassigned tasks and
	// releasing tasks of nodes which left the member list. Static
	// membership only.
	Leader bool

	// Members is the list of node ids considered alive. Static membership
	// only.
	Members []string

	// HeartbeatInterval is how often a node refreshes its liveness row.
	HeartbeatInterval Duration

	// LooksDeadTimeout is how long a node may miss heartbeats before its
	// tasks are released.
	LooksDeadTimeout Duration

	// ResolveInterval is how often the reconciliation pass runs.
	ResolveInterval Duration

	// CleanEvery makes the leader release the tasks of dead nodes every
	// n-th reconciliation pass.
	CleanEvery int

	// Resolver picks the node unassigned tasks are claimed for.
	// One of "round-robin", "least-loaded".
	Resolver string

	// ReleaseOnShutdown releases the tasks owned by this node on a
	// graceful shutdown so other nodes can pick them up immediately.
	ReleaseOnShutdown bool
}

// HarmonyDB is the connection to the shared task table.
type HarmonyDB struct {
	// Driver is either "postgres" (also used for yugabyte) or "sqlite".
	Driver string

	// HOSTS is a list of hostnames to nodes running the postgres protocol.
	Hosts []string

	Username string
	Password string
	Database string
	Port     string

	// Path is the database file when Driver is "sqlite".
	Path string

	MaxOpenConns    int
	ConnMaxIdleTime Duration
}

// TaskDefinition describes one recurring job.
type TaskDefinition struct {
	Name string

	// Kind selects the registered task implementation.
	Kind string

	Interval Duration

	// Count is the number of times the task fires. Zero repeats forever.
	Count int

	// PinnedServers restricts the task to the listed node ids and takes it
	// out of cluster coordination.
	PinnedServers []string

	// Paused deploys the task in paused mode.
	Paused bool

	Properties map[string]string
}
