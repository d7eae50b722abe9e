package config

import (
	"bytes"
	"io"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
	"github.com/mitchellh/go-homedir"
	"golang.org/x/xerrors"
)

// EnvPrefix is the prefix of environment variables overriding config
// values, e.g. TASKCOORD_NODE_ID or TASKCOORD_HARMONYDB_HOSTS.
const EnvPrefix = "TASKCOORD"

// FromFile loads config from a specified file overriding defaults specified in
// the def parameter. If file does not exist or is empty defaults are assumed.
func FromFile(path string, def *TaskCoord) (*TaskCoord, error) {
	path, err := homedir.Expand(path)
	if err != nil {
		return nil, xerrors.Errorf("expanding config path: %w", err)
	}

	file, err := os.Open(path)
	switch {
	case os.IsNotExist(err):
		return FromReader(bytes.NewReader(nil), def)
	case err != nil:
		return nil, err
	}

	defer file.Close() //nolint:errcheck // The file is RO
	return FromReader(file, def)
}

// FromReader loads config from a reader instance, then applies environment
// overrides.
func FromReader(reader io.Reader, def *TaskCoord) (*TaskCoord, error) {
	cfg := *def
	if _, err := toml.NewDecoder(reader).Decode(&cfg); err != nil {
		return nil, xerrors.Errorf("decoding config: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, xerrors.Errorf("processing env vars overrides: %w", err)
	}

	dir, err := homedir.Expand(cfg.Node.DataDir)
	if err != nil {
		return nil, xerrors.Errorf("expanding data dir: %w", err)
	}
	cfg.Node.DataDir = dir

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values the node cannot start without.
func (c *TaskCoord) Validate() error {
	switch c.HarmonyDB.Driver {
	case "postgres", "yugabyte":
		if len(c.HarmonyDB.Hosts) == 0 {
			return xerrors.Errorf("HarmonyDB.Hosts must not be empty")
		}
	case "sqlite":
		if c.HarmonyDB.Path == "" {
			return xerrors.Errorf("HarmonyDB.Path must be set for the sqlite driver")
		}
	default:
		return xerrors.Errorf("unknown HarmonyDB.Driver %q", c.HarmonyDB.Driver)
	}

	switch c.Coordination.Membership {
	case "static":
	case "db":
		if c.Coordination.LooksDeadTimeout <= c.Coordination.HeartbeatInterval {
			return xerrors.Errorf("Coordination.LooksDeadTimeout must be longer than Coordination.HeartbeatInterval")
		}
	default:
		return xerrors.Errorf("unknown Coordination.Membership %q", c.Coordination.Membership)
	}
	if c.Coordination.ResolveInterval <= 0 {
		return xerrors.Errorf("Coordination.ResolveInterval must be positive")
	}

	if c.Coordination.CleanEvery < 1 {
		return xerrors.Errorf("Coordination.CleanEvery must be positive, got %d", c.Coordination.CleanEvery)
	}

	seen := make(map[string]struct{}, len(c.Tasks))
	for _, t := range c.Tasks {
		if t.Name == "" {
			return xerrors.Errorf("task definition without a name")
		}
		if _, ok := seen[t.Name]; ok {
			return xerrors.Errorf("task %s defined twice", t.Name)
		}
		seen[t.Name] = struct{}{}
		if t.Interval <= 0 {
			return xerrors.Errorf("task %s: interval must be positive", t.Name)
		}
	}
	return nil
}

// CoordinationEnabled reports whether tasks are coordinated cluster-wide.
func (c *TaskCoord) CoordinationEnabled() bool {
	return c.Coordination.Enabled
}

// PinnedServers returns the pinned node ids of the named task.
func (c *TaskCoord) PinnedServers(name string) []string {
	for _, t := range c.Tasks {
		if t.Name == name {
			return t.PinnedServers
		}
	}
	return nil
}

// ConfigComment prints the config with every line commented out.
func ConfigComment(t interface{}) ([]byte, error) {
	buf := new(bytes.Buffer)
	_, _ = buf.WriteString("# Default config:\n")
	e := toml.NewEncoder(buf)
	if err := e.Encode(t); err != nil {
		return nil, xerrors.Errorf("encoding config: %w", err)
	}
	b := buf.Bytes()
	b = bytes.ReplaceAll(b, []byte("\n"), []byte("\n#"))
	b = bytes.ReplaceAll(b, []byte("#["), []byte("["))
	return b, nil
}
