package common

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

type ciResult struct {
	OK        bool      `json:"ok"`
	Name      string    `json:"name"`
	Details   []string  `json:"details,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// PrintCIResult writes one machine-readable JSON line, for use when a
// tool runs without the interactive UI.
func PrintCIResult(ok bool, name string, details []string, err error) {
	res := ciResult{OK: ok, Name: name, Details: details, Timestamp: time.Now().UTC()}
	if err != nil {
		res.Error = err.Error()
	}
	out, marshalErr := json.Marshal(res)
	if marshalErr != nil {
		fmt.Fprintf(os.Stderr, "marshal ci result: %v\n", marshalErr)
		return
	}
	fmt.Println(string(out))
}
