package builtin

import (
	"context"
	"log/slog"

	"github.com/calder-io/flume/internal/connector"
	"github.com/calder-io/flume/internal/flume"
	"github.com/calder-io/flume/internal/schema"
)

// LogDestination writes the input records to the process log. A debugging
// sink for workflow development; carries no external side effects.
type LogDestination struct {
	connector.Base
}

func NewLogDestination() *LogDestination {
	return &LogDestination{Base: connector.Base{
		ConnID:   "log_destination",
		ConnName: "Log Sink",
		ConnKind: flume.RoleDestination,
		ConnSchema: schema.Object(map[string]*schema.Property{
			"sample": {Type: "number", Description: "How many records to log in full", Default: 3},
		}),
	}}
}

func (l *LogDestination) Execute(_ context.Context, inputs []*flume.DataEnvelope) (*flume.DataEnvelope, error) {
	records := gatherRecords(inputs)
	sample := l.Int("sample", 3)
	if sample > len(records) {
		sample = len(records)
	}

	slog.Info("log sink received records", "count", len(records))
	for i := 0; i < sample; i++ {
		slog.Info("log sink sample", "index", i, "record", records[i])
	}

	return flume.Receipt(map[string]any{
		"records_logged": len(records),
	}), nil
}
