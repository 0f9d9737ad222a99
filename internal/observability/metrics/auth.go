package metrics

import (
	"time"

	obserrors "github.com/target/mmk-gatekeeper/internal/observability/errors"
	"github.com/target/mmk-gatekeeper/internal/observability/statsd"
)

// Result values used for the "result" tag. Chain outcomes reuse the outcome kind names.
const (
	ResultSuccess  = "success"
	ResultRedirect = "redirect"
	ResultFailure  = "failure"
	ResultError    = "error"
)

// StrategyRun captures a single strategy activation for metric emission.
type StrategyRun struct {
	Strategy string
	Result   string
	Duration time.Duration
	Err      error
}

// EmitStrategyRun emits a counter and a timing for one strategy activation.
func EmitStrategyRun(sink statsd.Sink, in StrategyRun) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"strategy": in.Strategy,
		"result":   in.Result,
	}
	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("auth.strategy.run", 1, tags)
	if in.Duration > 0 {
		sink.Timing("auth.strategy.duration", in.Duration, CloneTags(tags))
	}
}

// EmitChainResult counts how a whole chain evaluation ended.
func EmitChainResult(sink statsd.Sink, result string) {
	if sink == nil {
		return
	}
	sink.Count("auth.chain.result", 1, map[string]string{"result": result})
}

// EmitSessionEvent counts session lifecycle events such as "created" or "logout".
func EmitSessionEvent(sink statsd.Sink, event string) {
	if sink == nil {
		return
	}
	sink.Count("auth.session", 1, map[string]string{"event": event})
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
