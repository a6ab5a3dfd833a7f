// Package logsink filters, shapes, and forwards container log batches
// to heterogeneous external log platforms (C10, §4.10). One failed
// sink never blocks another; failures are counted on the sink's own
// model.LogSink counters rather than propagated.
package logsink

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/infra-mapper/infra-mapper/internal/clock"
	"github.com/infra-mapper/infra-mapper/internal/logging"
	"github.com/infra-mapper/infra-mapper/internal/metrics"
	"github.com/infra-mapper/infra-mapper/internal/model"
)

// sendTimeout bounds every outbound sink call (§5: "log sink: 30 s").
const sendTimeout = 30 * time.Second

// Store is the subset of internal/store the forwarder needs.
type Store interface {
	ListLogSinks() ([]model.LogSink, error)
	SaveLogSink(sink model.LogSink) error
}

// Forwarder filters and ships log batches to every enabled sink.
// Satisfies internal/ingest's LogForwarder interface.
type Forwarder struct {
	store  Store
	log    *logging.Logger
	clock  clock.Clock
	client *http.Client
}

// New creates a Forwarder.
func New(store Store, log *logging.Logger, clk clock.Clock) *Forwarder {
	return &Forwarder{
		store:  store,
		log:    log,
		clock:  clk,
		client: &http.Client{Timeout: sendTimeout},
	}
}

// Forward filters, shapes, and sends one report's log batch to every
// enabled sink. Best-effort: a sink error is recorded on the sink
// itself and never returned to the caller (§4.5: log-sink runs
// after commit and is best-effort).
func (f *Forwarder) Forward(entries []model.ContainerLogEntry) {
	if len(entries) == 0 {
		return
	}
	sinks, err := f.store.ListLogSinks()
	if err != nil {
		f.log.Warn("logsink: list sinks failed", "error", err)
		return
	}
	for _, sink := range sinks {
		if !sink.Enabled {
			continue
		}
		filtered := filterEntries(sink, entries)
		if len(filtered) == 0 {
			continue
		}
		f.sendToSink(sink, filtered)
	}
}

// filterEntries drops the whole batch if filter_hosts excludes every
// host present, then drops individual entries by container/stream
// filter (§4.10 step 1).
func filterEntries(sink model.LogSink, entries []model.ContainerLogEntry) []model.ContainerLogEntry {
	if len(sink.FilterHosts) > 0 {
		ok := false
		for _, e := range entries {
			if containsStr(sink.FilterHosts, e.HostID) {
				ok = true
				break
			}
		}
		if !ok {
			return nil
		}
	}

	out := make([]model.ContainerLogEntry, 0, len(entries))
	for _, e := range entries {
		if len(sink.FilterHosts) > 0 && !containsStr(sink.FilterHosts, e.HostID) {
			continue
		}
		if len(sink.FilterContainers) > 0 && !containsStr(sink.FilterContainers, e.ContainerID) {
			continue
		}
		if len(sink.FilterStreams) > 0 && !containsStr(sink.FilterStreams, e.Stream) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func containsStr(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (f *Forwarder) sendToSink(sink model.LogSink, entries []model.ContainerLogEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	var err error
	switch sink.SinkType {
	case "gelf":
		err = f.sendGELF(ctx, sink, entries)
	case "openobserve":
		err = f.sendOpenObserve(ctx, sink, entries)
	case "loki":
		err = f.sendLoki(ctx, sink, entries)
	case "elasticsearch":
		err = f.sendElasticsearch(ctx, sink, entries)
	case "splunk_hec":
		err = f.sendSplunkHEC(ctx, sink, entries)
	case "syslog":
		err = f.sendSyslog(ctx, sink, entries)
	case "webhook":
		err = f.sendWebhook(ctx, sink, entries)
	case "noop", "stdout":
		err = f.sendStdout(sink, entries)
	default:
		err = fmt.Errorf("unknown sink type: %q", sink.SinkType)
	}

	now := f.clock.Now().UTC()
	outcome := "ok"
	if err != nil {
		outcome = "error"
		sink.ErrorsCount++
		sink.LastError = now
		sink.LastErrorMessage = err.Error()
		f.log.Warn("logsink: send failed", "sink_id", sink.ID, "sink_type", sink.SinkType, "error", err.Error())
	} else {
		sink.LogsSent += int64(len(entries))
		sink.LastSuccess = now
	}
	metrics.LogSinkSendsTotal.WithLabelValues(sink.SinkType, outcome).Inc()

	if serr := f.store.SaveLogSink(sink); serr != nil {
		f.log.Warn("logsink: save counters failed", "sink_id", sink.ID, "error", serr.Error())
	}
}

func (f *Forwarder) httpClientFor(sink model.LogSink) *http.Client {
	if !sink.InsecureSkipTLS {
		return f.client
	}
	return &http.Client{
		Timeout: sendTimeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // operator opt-in per sink
		},
	}
}

func (f *Forwarder) postJSON(ctx context.Context, sink model.LogSink, body []byte, contentType string, headers map[string]string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sink.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := f.httpClientFor(sink).Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sink returned %s", resp.Status)
	}
	return nil
}

// --- Graylog GELF (§4.10) ---

type gelfMessage struct {
	Version      string `json:"version"`
	Host         string `json:"host"`
	ShortMessage string `json:"short_message"`
	FullMessage  string `json:"full_message,omitempty"`
	Timestamp    int64  `json:"timestamp"`
	Level        int    `json:"level"`
	Facility     string `json:"facility,omitempty"`
	Container    string `json:"_container"`
}

func (f *Forwarder) sendGELF(ctx context.Context, sink model.LogSink, entries []model.ContainerLogEntry) error {
	version := configString(sink.Config, "version", "1.1")
	facility := configString(sink.Config, "facility", "")

	var lastErr error
	for _, e := range entries {
		short := e.Message
		var full string
		if len(short) > 250 {
			full = short
			short = short[:250]
		}
		level := 6
		if e.Stream == "stderr" {
			level = 3
		}
		msg := gelfMessage{
			Version:      version,
			Host:         e.HostID,
			ShortMessage: short,
			FullMessage:  full,
			Timestamp:    e.Timestamp.Unix(),
			Level:        level,
			Facility:     facility,
			Container:    e.ContainerID,
		}
		body, err := json.Marshal(msg)
		if err != nil {
			lastErr = err
			continue
		}
		if err := f.postJSON(ctx, sink, body, "application/json", nil); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// --- OpenObserve: flat JSON rows (§4.10) ---

type openObserveRow struct {
	HostID      string `json:"host_id"`
	ContainerID string `json:"container_id"`
	Stream      string `json:"stream"`
	Message     string `json:"message"`
	Timestamp   string `json:"timestamp"`
	Org         string `json:"org,omitempty"`
	LogStream   string `json:"stream_name,omitempty"`
}

func (f *Forwarder) sendOpenObserve(ctx context.Context, sink model.LogSink, entries []model.ContainerLogEntry) error {
	org := configString(sink.Config, "org", "")
	streamName := configString(sink.Config, "stream", "default")

	rows := make([]openObserveRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, openObserveRow{
			HostID:      e.HostID,
			ContainerID: e.ContainerID,
			Stream:      e.Stream,
			Message:     e.Message,
			Timestamp:   e.Timestamp.UTC().Format(time.RFC3339Nano),
			Org:         org,
			LogStream:   streamName,
		})
	}
	body, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("marshal openobserve rows: %w", err)
	}
	return f.postJSON(ctx, sink, body, "application/json", nil)
}

// --- Loki: streams grouped by label set (§4.10) ---

type lokiPush struct {
	Streams []lokiStream `json:"streams"`
}

type lokiStream struct {
	Stream map[string]string `json:"stream"`
	Values [][2]string        `json:"values"`
}

func (f *Forwarder) sendLoki(ctx context.Context, sink model.LogSink, entries []model.ContainerLogEntry) error {
	byLabels := map[string]*lokiStream{}
	order := make([]string, 0, len(entries))
	for _, e := range entries {
		labels := map[string]string{
			"container": e.ContainerID,
			"host":      e.HostID,
			"stream":    e.Stream,
		}
		key := labels["container"] + "|" + labels["host"] + "|" + labels["stream"]
		s, ok := byLabels[key]
		if !ok {
			s = &lokiStream{Stream: labels}
			byLabels[key] = s
			order = append(order, key)
		}
		s.Values = append(s.Values, [2]string{
			fmt.Sprintf("%d", e.Timestamp.UnixNano()),
			e.Message,
		})
	}

	push := lokiPush{Streams: make([]lokiStream, 0, len(order))}
	for _, key := range order {
		push.Streams = append(push.Streams, *byLabels[key])
	}
	body, err := json.Marshal(push)
	if err != nil {
		return fmt.Errorf("marshal loki push: %w", err)
	}

	headers := map[string]string{}
	if tenant := configString(sink.Config, "tenant_id", ""); tenant != "" {
		headers["X-Scope-OrgID"] = tenant
	}
	return f.postJSON(ctx, sink, body, "application/json", headers)
}

// --- Elasticsearch bulk NDJSON (§4.10) ---

func (f *Forwarder) sendElasticsearch(ctx context.Context, sink model.LogSink, entries []model.ContainerLogEntry) error {
	index := configString(sink.Config, "index", "infra-mapper-logs")

	var buf bytes.Buffer
	for _, e := range entries {
		action := map[string]any{"index": map[string]any{"_index": index}}
		doc := map[string]any{
			"host_id":      e.HostID,
			"container_id": e.ContainerID,
			"stream":       e.Stream,
			"message":      e.Message,
			"@timestamp":   e.Timestamp.UTC().Format(time.RFC3339Nano),
		}
		actionLine, err := json.Marshal(action)
		if err != nil {
			return fmt.Errorf("marshal bulk action: %w", err)
		}
		docLine, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("marshal bulk doc: %w", err)
		}
		buf.Write(actionLine)
		buf.WriteByte('\n')
		buf.Write(docLine)
		buf.WriteByte('\n')
	}
	return f.postJSON(ctx, sink, buf.Bytes(), "application/x-ndjson", nil)
}

// --- Splunk HEC (§4.10) ---

type splunkEvent struct {
	Time       float64        `json:"time"`
	Source     string         `json:"source,omitempty"`
	SourceType string         `json:"sourcetype,omitempty"`
	Index      string         `json:"index,omitempty"`
	Event      map[string]any `json:"event"`
}

func (f *Forwarder) sendSplunkHEC(ctx context.Context, sink model.LogSink, entries []model.ContainerLogEntry) error {
	source := configString(sink.Config, "source", "")
	sourceType := configString(sink.Config, "sourcetype", "")
	index := configString(sink.Config, "index", "")
	token := authString(sink.Auth, "token")
	if token == "" {
		token = authString(sink.Auth, "api_key")
	}

	var buf bytes.Buffer
	for _, e := range entries {
		ev := splunkEvent{
			Time:       float64(e.Timestamp.UnixNano()) / 1e9,
			Source:     source,
			SourceType: sourceType,
			Index:      index,
			Event: map[string]any{
				"host_id":      e.HostID,
				"container_id": e.ContainerID,
				"stream":       e.Stream,
				"message":      e.Message,
			},
		}
		line, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal splunk event: %w", err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	headers := map[string]string{"Authorization": "Splunk " + token}
	return f.postJSON(ctx, sink, buf.Bytes(), "application/json", headers)
}

// --- Syslog RFC 5424 (§4.10) ---

func (f *Forwarder) sendSyslog(ctx context.Context, sink model.LogSink, entries []model.ContainerLogEntry) error {
	protocol := configString(sink.Config, "protocol", "tcp")
	facilityNum := configInt(sink.Config, "facility", 1) // 1 = "user-level"

	network := "tcp"
	if protocol == "udp" {
		network = "udp"
	}

	var conn net.Conn
	var err error
	dialer := &net.Dialer{Timeout: sendTimeout}
	if protocol == "tcp" && !sink.InsecureSkipTLS && hasSyslogTLS(sink.Config) {
		conn, err = tls.DialWithDialer(dialer, "tcp", sink.URL, &tls.Config{InsecureSkipVerify: sink.InsecureSkipTLS}) //nolint:gosec
	} else {
		conn, err = dialer.DialContext(ctx, network, sink.URL)
	}
	if err != nil {
		return fmt.Errorf("dial syslog: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}

	for _, e := range entries {
		severity := 6
		if e.Stream == "stderr" {
			severity = 3
		}
		pri := facilityNum*8 + severity
		line := fmt.Sprintf("<%d>1 %s %s %s - - - %s\n",
			pri, e.Timestamp.UTC().Format(time.RFC3339), e.HostID, e.ContainerID, e.Message)
		if _, err := conn.Write([]byte(line)); err != nil {
			return fmt.Errorf("write syslog line: %w", err)
		}
	}
	return nil
}

func hasSyslogTLS(cfg map[string]any) bool {
	v, ok := cfg["tls"]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// --- Generic webhook (§4.10) ---

func (f *Forwarder) sendWebhook(ctx context.Context, sink model.LogSink, entries []model.ContainerLogEntry) error {
	method := strings.ToUpper(configString(sink.Config, "method", "POST"))
	wrapInArray := true
	if v, ok := sink.Config["wrap_in_array"]; ok {
		if b, ok := v.(bool); ok {
			wrapInArray = b
		}
	}

	var body []byte
	var err error
	if wrapInArray || len(entries) > 1 {
		body, err = json.Marshal(entries)
	} else {
		body, err = json.Marshal(entries[0])
	}
	if err != nil {
		return fmt.Errorf("marshal webhook body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, sink.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.httpClientFor(sink).Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sink returned %s", resp.Status)
	}
	return nil
}

// --- noop/stdout: default sink for tests and local runs ---

func (f *Forwarder) sendStdout(sink model.LogSink, entries []model.ContainerLogEntry) error {
	for _, e := range entries {
		f.log.Info("log", "sink", sink.Name, "host_id", e.HostID, "container_id", e.ContainerID,
			"stream", e.Stream, "message", e.Message, "timestamp", e.Timestamp.String())
	}
	return nil
}

func configString(cfg map[string]any, key, def string) string {
	if cfg == nil {
		return def
	}
	if v, ok := cfg[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return def
}

func configInt(cfg map[string]any, key string, def int) int {
	if cfg == nil {
		return def
	}
	if v, ok := cfg[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		}
	}
	return def
}

func authString(auth map[string]any, key string) string {
	if auth == nil {
		return ""
	}
	if v, ok := auth[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
