// Package obslog wires structured logging for the retrieval engine.
// Each engine instance constructs and threads its own logger rather than
// relying on a package-level global, so concurrent engines (and tests)
// never share sink state.
package obslog

import (
	"go.uber.org/zap"
)

// New builds a production zap logger, or a development one with
// human-readable console output when dev is true.
func New(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// Stage fields a log line with the pipeline stage it comes from: either a
// rank-stage tag ("S1"/"S1_embed_fail"/"S3"/"S3_MMR") or an intermediate
// step name such as "PRF", "DEDUP" or "FUSION".
func Stage(stage string) zap.Field {
	return zap.String("stage", stage)
}

// Query fields a log line with the query text truncated for readability.
func Query(q string) zap.Field {
	if len(q) > 120 {
		q = q[:120] + "…"
	}
	return zap.String("query", q)
}
