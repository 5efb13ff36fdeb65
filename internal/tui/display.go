package tui

import (
	"os"
	"strconv"
	"strings"
)

// Display holds the presentation preferences the terminal environment
// asks for.
type Display struct {
	NoColor      bool
	ReduceMotion bool
}

// reducedMotionVars are checked in order; any truthy one disables animation.
var reducedMotionVars = []string{"CTCAI_REDUCED_MOTION", "REDUCED_MOTION", "REDUCE_MOTION"}

// DisplayFromEnv reads NO_COLOR (any value, even empty), TERM=dumb and the
// reduced motion variables.
func DisplayFromEnv() Display {
	d := Display{NoColor: noColorFromEnv()}
	for _, name := range reducedMotionVars {
		if envBool(name) {
			d.ReduceMotion = true
			break
		}
	}
	return d
}

func noColorFromEnv() bool {
	if _, set := os.LookupEnv("NO_COLOR"); set {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(os.Getenv("TERM")), "dumb")
}

// envBool accepts strconv.ParseBool values plus yes and on.
func envBool(name string) bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(name)))
	if raw == "yes" || raw == "on" {
		return true
	}
	v, err := strconv.ParseBool(raw)
	return err == nil && v
}
