package lotuslog

import (
	"os"

	logging "github.com/ipfs/go-log/v2"
)

func SetupLogLevels() {
	if _, set := os.LookupEnv("GOLOG_LOG_LEVEL"); !set {
		_ = logging.SetLogLevel("*", "INFO")
		_ = logging.SetLogLevel("harmonydb", "WARN")
		_ = logging.SetLogLevel("localsched", "WARN")
		_ = logging.SetLogLevel("retry", "WARN")
	}
}
