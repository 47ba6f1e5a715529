package history

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"

	"github.com/efebarandurmaz/flowlens/internal/observability"
)

// Measurement is the InfluxDB measurement holding block runs. Tags are
// flow_id, block_id and kind; fields are duration_ms and success.
const Measurement = "block_execution"

// InfluxReader reads execution history from InfluxDB 2.x.
type InfluxReader struct {
	client influxdb2.Client
	org    string
	bucket string
}

// NewInfluxReader connects to url with token.
func NewInfluxReader(url, token, org, bucket string) (*InfluxReader, error) {
	if url == "" || bucket == "" {
		return nil, fmt.Errorf("influx history requires url and bucket")
	}
	return &InfluxReader{
		client: influxdb2.NewClient(url, token),
		org:    org,
		bucket: bucket,
	}, nil
}

// Record writes one execution point.
func (r *InfluxReader) Record(ctx context.Context, e Execution) error {
	p := influxdb2.NewPointWithMeasurement(Measurement).
		AddTag("flow_id", e.FlowID).
		AddTag("block_id", e.BlockID).
		AddTag("kind", string(e.Kind)).
		AddField("duration_ms", float64(e.Duration)/float64(time.Millisecond)).
		AddField("success", e.Success).
		SetTime(e.StartedAt)
	return r.client.WriteAPIBlocking(r.org, r.bucket).WritePoint(ctx, p)
}

// BlockStats runs a Flux query over the duration_ms field and aggregates
// the rows client side.
func (r *InfluxReader) BlockStats(ctx context.Context, flowID string, since time.Time) ([]BlockStat, error) {
	ctx, span := observability.StartHistorySpan(ctx, "influx", "block_stats")
	defer span.End()

	result, err := r.client.QueryAPI(r.org).Query(ctx, fluxBlockRuns(r.bucket, flowID, since))
	if err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("influx query: %w", err)
	}
	defer result.Close()

	acc := newStatAccumulator()
	for result.Next() {
		rec := result.Record()
		blockID, _ := rec.ValueByKey("block_id").(string)
		ms, ok := rec.ValueByKey("duration_ms").(float64)
		if blockID == "" || !ok {
			continue
		}
		success, _ := rec.ValueByKey("success").(bool)
		acc.add(blockID, time.Duration(ms*float64(time.Millisecond)), success)
	}
	if err := result.Err(); err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("influx result: %w", err)
	}
	return acc.stats(), nil
}

// Close releases the client.
func (r *InfluxReader) Close() error {
	r.client.Close()
	return nil
}

func fluxBlockRuns(bucket, flowID string, since time.Time) string {
	return fmt.Sprintf(`
		from(bucket: %q)
		  |> range(start: %s)
		  |> filter(fn: (r) => r._measurement == %q)
		  |> filter(fn: (r) => r.flow_id == %q)
		  |> pivot(rowKey: ["_time"], columnKey: ["_field"], valueColumn: "_value")
		  |> keep(columns: ["_time", "block_id", "duration_ms", "success"])
	`, bucket, since.UTC().Format(time.RFC3339), Measurement, fluxEscape(flowID))
}

// fluxEscape strips characters that could end a Flux string literal early.
func fluxEscape(s string) string {
	return strings.NewReplacer(`"`, "", `\`, "").Replace(s)
}

type statAccumulator struct {
	byBlock map[string]*statSum
}

type statSum struct {
	runs, failures int
	total, max     time.Duration
}

func newStatAccumulator() *statAccumulator {
	return &statAccumulator{byBlock: make(map[string]*statSum)}
}

func (a *statAccumulator) add(blockID string, d time.Duration, success bool) {
	s, ok := a.byBlock[blockID]
	if !ok {
		s = &statSum{}
		a.byBlock[blockID] = s
	}
	s.runs++
	if !success {
		s.failures++
	}
	s.total += d
	if d > s.max {
		s.max = d
	}
}

func (a *statAccumulator) stats() []BlockStat {
	out := make([]BlockStat, 0, len(a.byBlock))
	for id, s := range a.byBlock {
		out = append(out, BlockStat{
			BlockID:     id,
			Runs:        s.runs,
			Failures:    s.failures,
			MeanLatency: s.total / time.Duration(s.runs),
			MaxLatency:  s.max,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BlockID < out[j].BlockID })
	return out
}
