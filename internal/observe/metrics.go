// Package observe wires OpenTelemetry metrics and traces into the jukebox:
// the instrument set, SDK provider setup with a Prometheus bridge, span
// helpers and HTTP middleware.
//
// [DefaultMetrics] records against the global meter provider, which is a
// no-op until [InitProvider] runs. Tests should build their own instance with
// [NewMetrics] and a manual reader.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope for all jukebox metrics.
const meterName = "github.com/MrWong99/jukebox"

// Metrics holds every instrument the application records.
type Metrics struct {
	// ResolveDuration is the wall time of query resolution. Attributes:
	//   mode ("single"/"batch"), status ("ok"/"failed")
	ResolveDuration metric.Float64Histogram

	// Resolutions counts resolution attempts. Same attributes as ResolveDuration.
	Resolutions metric.Int64Counter

	// TracksSkipped counts batch entries dropped for lacking a stream.
	TracksSkipped metric.Int64Counter

	// TracksQueued counts tracks appended to guild queues.
	TracksQueued metric.Int64Counter

	// TracksPlayed counts tracks handed to a sink.
	TracksPlayed metric.Int64Counter

	// PlaybackErrors counts tracks that ended with an error or could not be
	// submitted. Attribute: stage ("submit"/"stream")
	PlaybackErrors metric.Int64Counter

	// QueueDepth is the number of tracks waiting in a guild queue after the
	// last change. Attribute: guild_id
	QueueDepth metric.Int64Gauge

	// ActiveGuilds is the number of guilds with an attached sink.
	ActiveGuilds metric.Int64UpDownCounter

	// Commands counts chat command invocations. Attributes: command, status
	Commands metric.Int64Counter

	// HTTPRequestDuration is HTTP handler latency. Attributes: method, path, status
	HTTPRequestDuration metric.Float64Histogram
}

// resolveBuckets are histogram boundaries in seconds. yt-dlp lookups
// typically take one to several seconds; playlists take longer.
var resolveBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30, 60,
}

// NewMetrics creates all instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ResolveDuration, err = m.Float64Histogram("jukebox.resolve.duration",
		metric.WithDescription("Latency of query resolution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(resolveBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Resolutions, err = m.Int64Counter("jukebox.resolve.requests",
		metric.WithDescription("Resolution attempts by mode and status."),
	); err != nil {
		return nil, err
	}
	if met.TracksSkipped, err = m.Int64Counter("jukebox.tracks.skipped",
		metric.WithDescription("Batch entries dropped because they had no playable stream."),
	); err != nil {
		return nil, err
	}
	if met.TracksQueued, err = m.Int64Counter("jukebox.tracks.queued",
		metric.WithDescription("Tracks appended to guild queues."),
	); err != nil {
		return nil, err
	}
	if met.TracksPlayed, err = m.Int64Counter("jukebox.tracks.played",
		metric.WithDescription("Tracks submitted to a voice sink."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackErrors, err = m.Int64Counter("jukebox.playback.errors",
		metric.WithDescription("Tracks that failed to start or ended with an error."),
	); err != nil {
		return nil, err
	}
	if met.QueueDepth, err = m.Int64Gauge("jukebox.queue.depth",
		metric.WithDescription("Tracks waiting in a guild queue."),
	); err != nil {
		return nil, err
	}
	if met.ActiveGuilds, err = m.Int64UpDownCounter("jukebox.active_guilds",
		metric.WithDescription("Guilds with a connected voice sink."),
	); err != nil {
		return nil, err
	}
	if met.Commands, err = m.Int64Counter("jukebox.commands",
		metric.WithDescription("Chat command invocations by command and status."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("jukebox.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns a process-wide [Metrics] bound to the global meter
// provider. It panics if instrument creation fails, which the global provider
// never does.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordResolution records one resolution attempt.
func (m *Metrics) RecordResolution(ctx context.Context, mode, status string, d time.Duration) {
	attrs := metric.WithAttributes(Attr("mode", mode), Attr("status", status))
	m.ResolveDuration.Record(ctx, d.Seconds(), attrs)
	m.Resolutions.Add(ctx, 1, attrs)
}

// RecordPlaybackError counts a failed track at the given stage.
func (m *Metrics) RecordPlaybackError(ctx context.Context, stage string) {
	m.PlaybackErrors.Add(ctx, 1, metric.WithAttributes(Attr("stage", stage)))
}

// RecordQueueDepth reports the current queue length of a guild.
func (m *Metrics) RecordQueueDepth(ctx context.Context, guildID string, n int) {
	m.QueueDepth.Record(ctx, int64(n), metric.WithAttributes(Attr("guild_id", guildID)))
}

// RecordCommand counts a chat command invocation.
func (m *Metrics) RecordCommand(ctx context.Context, command, status string) {
	m.Commands.Add(ctx, 1, metric.WithAttributes(Attr("command", command), Attr("status", status)))
}
