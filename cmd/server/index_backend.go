package main

import (
	"fmt"
	"os"
	"strings"

	"terrasim.io/internal/persistence/indexdb"
	"terrasim.io/internal/sim/core"
)

type runtimeIndex interface {
	core.TickSink
	core.SessionSink
	Close() error
	RecordSettings(worldName string, settings any) error
	Stats() indexdb.Stats
}

func openRuntimeIndex(path string, disableDB bool) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("TERRASIM_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		idx, err := indexdb.OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported TERRASIM_INDEX_BACKEND: %s", backend)
	}
}
