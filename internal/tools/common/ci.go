package common

import (
	"encoding/json"
	"fmt"
	"os"
)

type ciResult struct {
	Name    string   `json:"name"`
	Success bool     `json:"success"`
	Details []string `json:"details,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// PrintCIResult emits one machine-readable line per tool run for CI logs.
func PrintCIResult(success bool, name string, details []string, err error) {
	res := ciResult{Name: name, Success: success, Details: details}
	if err != nil {
		res.Error = err.Error()
	}
	payload, merr := json.Marshal(res)
	if merr != nil {
		fmt.Fprintf(os.Stderr, "ci result marshal failed: %v\n", merr)
		return
	}
	fmt.Println(string(payload))
}
