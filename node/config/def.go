package config

import (
	"encoding"
	"time"
)

func DefaultTaskCoord() *TaskCoord {
	return &TaskCoord{
		Node: Node{
			ListenAddress: "127.0.0.1:12310",
			DataDir:       "~/.lotus-taskcoord",
		},
		Coordination: Coordination{
			Enabled:           true,
			Membership:        "static",
			HeartbeatInterval: Duration(10 * time.Second),
			LooksDeadTimeout:  Duration(time.Minute),
			ResolveInterval:   Duration(15 * time.Second),
			CleanEvery:        4,
			Resolver:          "round-robin",
			ReleaseOnShutdown: true,
		},
		HarmonyDB: HarmonyDB{
			Driver:          "postgres",
			Hosts:           []string{"127.0.0.1"},
			Username:        "yugabyte",
			Password:        "yugabyte",
			Database:        "yugabyte",
			Port:            "5433",
			MaxOpenConns:    8,
			ConnMaxIdleTime: Duration(time.Minute),
		},
	}
}

var _ encoding.TextMarshaler = (*Duration)(nil)
var _ encoding.TextUnmarshaler = (*Duration)(nil)

// Duration is a wrapper type for time.Duration
// for decoding and encoding from/to TOML
type Duration time.Duration

// UnmarshalText implements interface for TOML decoding
func (dur *Duration) UnmarshalText(text []byte) error {
	d, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*dur = Duration(d)
	return err
}

func (dur Duration) MarshalText() ([]byte, error) {
	d := time.Duration(dur)
	return []byte(d.String()), nil
}
