// Command ctcai is the terminal client for CTC-AI.
package main

import (
	"os"

	"github.com/ctc-ai/ctc_ai_ui/cmd/ctcai/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
