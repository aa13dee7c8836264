package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
)

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

// Logger returns the shared line logger. Request logs, audit trail
// lines and migration progress all go through it, so everything a
// permit transition touches lands in one stdout stream.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// LogRequest emits the entry as a single JSON line. Empty entries are
// dropped.
func LogRequest(entry map[string]any) {
	if len(entry) == 0 {
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Println(`{"level":"error","msg":"log entry marshal failed"}`)
		return
	}
	Logger().Println(string(data))
}
