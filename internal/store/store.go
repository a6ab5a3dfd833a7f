// Package store persists the infrastructure model on top of BoltDB,
// the teacher's storage engine (see DESIGN.md for why a relational
// engine was not substituted). Buckets mirror the entities of
// SPEC_FULL.md §3; composite keys are "<host_id>:<suffix>" so
// per-host prefix scans and chronological cursor scans (metrics, logs,
// connections) work the same way ListHistory/ListSnapshots do in the
// teacher's internal/store/bolt.go.
package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/infra-mapper/infra-mapper/internal/model"
)

var (
	bucketHosts          = []byte("hosts")
	bucketContainers     = []byte("containers")
	bucketNetworks       = []byte("networks")
	bucketConnections    = []byte("connections")
	bucketHostMetrics    = []byte("host_metrics")
	bucketContainerMetrics = []byte("container_metrics")
	bucketLogs           = []byte("logs")
	bucketAlertRules     = []byte("alert_rules")
	bucketAlerts         = []byte("alerts")
	bucketAlertsByFP     = []byte("alerts_by_fingerprint") // fingerprint -> id of the most recent alert fired for it, any status
	bucketAlertChannels  = []byte("alert_channels")
	bucketLogSinks       = []byte("log_sinks")
	bucketSettings       = []byte("settings")
	bucketAPIKeys        = []byte("api_keys") // hash -> host_id hint (empty = unbound bootstrap key)
)

var allBuckets = [][]byte{
	bucketHosts, bucketContainers, bucketNetworks, bucketConnections,
	bucketHostMetrics, bucketContainerMetrics, bucketLogs,
	bucketAlertRules, bucketAlerts, bucketAlertsByFP, bucketAlertChannels,
	bucketLogSinks, bucketSettings, bucketAPIKeys,
}

// Store wraps a BoltDB database for Infra-Mapper persistence.
type Store struct {
	db *bolt.DB
}

// Open creates or opens a BoltDB database at the given path and
// ensures all required buckets exist.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying BoltDB.
func (s *Store) Close() error { return s.db.Close() }

func put(tx *bolt.Tx, bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return tx.Bucket(bucket).Put(key, data)
}

// --- Hosts ---

// UpsertHost creates or updates a Host row, keyed by agent ID.
func (s *Store) UpsertHost(h model.Host) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketHosts, []byte(h.ID), h)
	})
}

// GetHost returns a host by ID. ok is false if not found.
func (s *Store) GetHost(id string) (h model.Host, ok bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketHosts).Get([]byte(id))
		if v == nil {
			return nil
		}
		ok = true
		return json.Unmarshal(v, &h)
	})
	return h, ok, err
}

// DeleteHost removes a host and cascades to its containers, networks,
// connections, metrics, and logs.
func (s *Store) DeleteHost(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketHosts).Delete([]byte(id)); err != nil {
			return err
		}
		prefix := []byte(id + ":")
		for _, b := range []([]byte){bucketContainers, bucketNetworks, bucketConnections, bucketHostMetrics, bucketContainerMetrics, bucketLogs} {
			if err := deletePrefix(tx, b, prefix); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListHosts returns all known hosts.
func (s *Store) ListHosts() ([]model.Host, error) {
	var out []model.Host
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketHosts).ForEach(func(k, v []byte) error {
			var h model.Host
			if err := json.Unmarshal(v, &h); err != nil {
				return nil // skip malformed rows
			}
			out = append(out, h)
			return nil
		})
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func deletePrefix(tx *bolt.Tx, bucket, prefix []byte) error {
	b := tx.Bucket(bucket)
	c := b.Cursor()
	var keys [][]byte
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		keys = append(keys, append([]byte(nil), k...))
	}
	for _, k := range keys {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// --- Containers ---

// ReplaceHostContainers diff-reconciles a host's containers against
// the report's list, per §4.5 step 2: delete containers not present
// in `containers`, insert/overwrite the rest.
func (s *Store) ReplaceHostContainers(hostID string, containers []model.Container) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketContainers)
		prefix := []byte(hostID + ":")

		existing := map[string]bool{}
		c := b.Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			existing[string(k)] = true
		}

		want := map[string]bool{}
		for _, ctr := range containers {
			key := ctr.Key()
			want[key] = true
			if err := put(tx, bucketContainers, []byte(key), ctr); err != nil {
				return err
			}
		}
		for key := range existing {
			if !want[key] {
				if err := b.Delete([]byte(key)); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// ListHostContainers returns all containers for a host.
func (s *Store) ListHostContainers(hostID string) ([]model.Container, error) {
	var out []model.Container
	prefix := []byte(hostID + ":")
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketContainers).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var ctr model.Container
			if err := json.Unmarshal(v, &ctr); err != nil {
				continue
			}
			out = append(out, ctr)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ShortID < out[j].ShortID })
	return out, err
}

// ListAllContainers returns every container across every host.
func (s *Store) ListAllContainers() ([]model.Container, error) {
	var out []model.Container
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketContainers).ForEach(func(k, v []byte) error {
			var ctr model.Container
			if err := json.Unmarshal(v, &ctr); err != nil {
				return nil
			}
			out = append(out, ctr)
			return nil
		})
	})
	return out, err
}

// GetContainer looks up a single container by host+short id.
func (s *Store) GetContainer(hostID, shortID string) (model.Container, bool, error) {
	var ctr model.Container
	var ok bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketContainers).Get([]byte(model.ContainerKey(hostID, shortID)))
		if v == nil {
			return nil
		}
		ok = true
		return json.Unmarshal(v, &ctr)
	})
	return ctr, ok, err
}

// --- Networks ---

// ReplaceHostNetworks wipes and re-inserts a host's networks (§3: "wiped and re-inserted on every report").
func (s *Store) ReplaceHostNetworks(hostID string, networks []model.Network) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		prefix := []byte(hostID + ":")
		if err := deletePrefix(tx, bucketNetworks, prefix); err != nil {
			return err
		}
		for _, n := range networks {
			key := hostID + ":" + n.Name
			if err := put(tx, bucketNetworks, []byte(key), n); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListHostNetworks returns all networks for a host.
func (s *Store) ListHostNetworks(hostID string) ([]model.Network, error) {
	var out []model.Network
	prefix := []byte(hostID + ":")
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketNetworks).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var n model.Network
			if err := json.Unmarshal(v, &n); err != nil {
				continue
			}
			out = append(out, n)
		}
		return nil
	})
	return out, err
}

// --- Connections ---

// ReplaceHostConnections deletes all connections for a host and
// inserts the new set (§4.5 step 4). Keys are
// "<host_id>:<RFC3339Nano>:<seq>" so a cursor range-scan returns them
// in observation order, matching the teacher's ListHistory idiom.
func (s *Store) ReplaceHostConnections(hostID string, conns []model.Connection) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		prefix := []byte(hostID + ":")
		if err := deletePrefix(tx, bucketConnections, prefix); err != nil {
			return err
		}
		b := tx.Bucket(bucketConnections)
		for i, c := range conns {
			key := fmt.Sprintf("%s:%s:%06d", hostID, c.ObservedAt.UTC().Format(time.RFC3339Nano), i)
			data, err := json.Marshal(c)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(key), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListHostConnections returns all connections for a host.
func (s *Store) ListHostConnections(hostID string) ([]model.Connection, error) {
	var out []model.Connection
	prefix := []byte(hostID + ":")
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketConnections).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var conn model.Connection
			if err := json.Unmarshal(v, &conn); err != nil {
				continue
			}
			out = append(out, conn)
		}
		return nil
	})
	return out, err
}

// ListAllConnections returns every connection across every host.
func (s *Store) ListAllConnections() ([]model.Connection, error) {
	var out []model.Connection
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketConnections).ForEach(func(k, v []byte) error {
			var conn model.Connection
			if err := json.Unmarshal(v, &conn); err != nil {
				return nil
			}
			out = append(out, conn)
			return nil
		})
	})
	return out, err
}

// --- Metrics ---

const metricsRetention = 7 * 24 * time.Hour

// AppendHostMetrics stores one host metrics point and prunes points
// older than the retention window.
func (s *Store) AppendHostMetrics(p model.HostMetricsPoint) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		key := fmt.Sprintf("%s:%s", p.HostID, p.Timestamp.UTC().Format(time.RFC3339Nano))
		if err := put(tx, bucketHostMetrics, []byte(key), p); err != nil {
			return err
		}
		return pruneOlderThan(tx, bucketHostMetrics, []byte(p.HostID+":"), p.Timestamp.Add(-metricsRetention))
	})
}

// ListHostMetrics returns host metrics points within [since, now].
func (s *Store) ListHostMetrics(hostID string, since time.Time) ([]model.HostMetricsPoint, error) {
	var out []model.HostMetricsPoint
	prefix := []byte(hostID + ":")
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketHostMetrics).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var p model.HostMetricsPoint
			if err := json.Unmarshal(v, &p); err != nil {
				continue
			}
			if p.Timestamp.Before(since) {
				continue
			}
			out = append(out, p)
		}
		return nil
	})
	return out, err
}

// AppendContainerMetrics stores container metrics points and prunes
// points older than the retention window, per container.
func (s *Store) AppendContainerMetrics(points []model.ContainerMetricsPoint) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		oldestByContainer := map[string]time.Time{}
		for _, p := range points {
			key := fmt.Sprintf("%s:%s:%s", p.HostID, p.ShortID, p.Timestamp.UTC().Format(time.RFC3339Nano))
			if err := put(tx, bucketContainerMetrics, []byte(key), p); err != nil {
				return err
			}
			ck := p.HostID + ":" + p.ShortID
			if _, ok := oldestByContainer[ck]; !ok {
				oldestByContainer[ck] = p.Timestamp
			}
		}
		for ck, ts := range oldestByContainer {
			if err := pruneOlderThan(tx, bucketContainerMetrics, []byte(ck+":"), ts.Add(-metricsRetention)); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListContainerMetrics returns metrics points for one container since a time.
func (s *Store) ListContainerMetrics(hostID, shortID string, since time.Time) ([]model.ContainerMetricsPoint, error) {
	var out []model.ContainerMetricsPoint
	prefix := []byte(hostID + ":" + model.NormalizeShortID(shortID) + ":")
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketContainerMetrics).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var p model.ContainerMetricsPoint
			if err := json.Unmarshal(v, &p); err != nil {
				continue
			}
			if p.Timestamp.Before(since) {
				continue
			}
			out = append(out, p)
		}
		return nil
	})
	return out, err
}

func pruneOlderThan(tx *bolt.Tx, bucket, prefix []byte, cutoff time.Time) error {
	b := tx.Bucket(bucket)
	c := b.Cursor()
	var toDelete [][]byte
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		var stamped struct {
			Timestamp time.Time `json:"timestamp"`
		}
		if json.Unmarshal(v, &stamped) != nil {
			continue
		}
		if stamped.Timestamp.Before(cutoff) {
			toDelete = append(toDelete, append([]byte(nil), k...))
		}
	}
	for _, k := range toDelete {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// --- Logs ---

const logRetention = 3 * 24 * time.Hour

// AppendLogs stores container log entries, truncating oversized
// messages per §3, and prunes entries older than the retention window.
func (s *Store) AppendLogs(entries []model.ContainerLogEntry) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		oldest := map[string]time.Time{}
		for _, e := range entries {
			if len(e.Message) > model.MaxLogMessageBytes {
				e.Message = e.Message[:model.MaxLogMessageBytes]
			}
			key := fmt.Sprintf("%s:%s:%s", e.HostID, e.ContainerID, e.Timestamp.UTC().Format(time.RFC3339Nano))
			if err := put(tx, bucketLogs, []byte(key), e); err != nil {
				return err
			}
			ck := e.HostID + ":" + e.ContainerID
			if _, ok := oldest[ck]; !ok {
				oldest[ck] = e.Timestamp
			}
		}
		for ck, ts := range oldest {
			if err := pruneOlderThan(tx, bucketLogs, []byte(ck+":"), ts.Add(-logRetention)); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListLogs returns log entries for a container since a time, oldest first.
func (s *Store) ListLogs(hostID, shortID string, since time.Time, limit int) ([]model.ContainerLogEntry, error) {
	var out []model.ContainerLogEntry
	prefix := []byte(hostID + ":" + model.NormalizeShortID(shortID) + ":")
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketLogs).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var e model.ContainerLogEntry
			if err := json.Unmarshal(v, &e); err != nil {
				continue
			}
			if e.Timestamp.Before(since) {
				continue
			}
			out = append(out, e)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	return out, err
}

// --- Alert rules ---

// SaveAlertRule creates or updates an alert rule.
func (s *Store) SaveAlertRule(r model.AlertRule) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketAlertRules, []byte(r.ID), r)
	})
}

// GetAlertRule returns a rule by ID.
func (s *Store) GetAlertRule(id string) (r model.AlertRule, ok bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketAlertRules).Get([]byte(id))
		if v == nil {
			return nil
		}
		ok = true
		return json.Unmarshal(v, &r)
	})
	return r, ok, err
}

// DeleteAlertRule removes a rule.
func (s *Store) DeleteAlertRule(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAlertRules).Delete([]byte(id))
	})
}

// ListAlertRules returns all alert rules.
func (s *Store) ListAlertRules() ([]model.AlertRule, error) {
	var out []model.AlertRule
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAlertRules).ForEach(func(k, v []byte) error {
			var r model.AlertRule
			if err := json.Unmarshal(v, &r); err != nil {
				return nil
			}
			out = append(out, r)
			return nil
		})
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

// --- Alerts ---

// SaveAlert upserts an alert and maintains the fingerprint index: the
// index always points at the most recently fired alert for a
// fingerprint, regardless of its status. Cooldown (§4.8) is measured
// from that alert's TriggeredAt even once it has resolved, so a
// flapping condition that resolves and re-matches within the same
// rule's cooldown window does not fire a second alert row.
func (s *Store) SaveAlert(a model.Alert) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := put(tx, bucketAlerts, []byte(a.ID), a); err != nil {
			return err
		}
		return tx.Bucket(bucketAlertsByFP).Put([]byte(a.Fingerprint), []byte(a.ID))
	})
}

// GetAlertByFingerprint looks up the most recently fired alert for a
// fingerprint, whatever its current status — callers use this for
// both cooldown (any status) and active-duplicate suppression
// (status-gated).
func (s *Store) GetAlertByFingerprint(fingerprint string) (a model.Alert, ok bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(bucketAlertsByFP).Get([]byte(fingerprint))
		if id == nil {
			return nil
		}
		v := tx.Bucket(bucketAlerts).Get(id)
		if v == nil {
			return nil
		}
		ok = true
		return json.Unmarshal(v, &a)
	})
	return a, ok, err
}

// GetAlert returns an alert by ID.
func (s *Store) GetAlert(id string) (a model.Alert, ok bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketAlerts).Get([]byte(id))
		if v == nil {
			return nil
		}
		ok = true
		return json.Unmarshal(v, &a)
	})
	return a, ok, err
}

// ListActiveAlerts returns all alerts not in the resolved state.
func (s *Store) ListActiveAlerts() ([]model.Alert, error) {
	var out []model.Alert
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAlerts).ForEach(func(k, v []byte) error {
			var a model.Alert
			if err := json.Unmarshal(v, &a); err != nil {
				return nil
			}
			if a.Status != model.AlertResolved {
				out = append(out, a)
			}
			return nil
		})
	})
	sort.Slice(out, func(i, j int) bool { return out[i].TriggeredAt.After(out[j].TriggeredAt) })
	return out, err
}

// ListAlerts returns every alert, most recently triggered first.
func (s *Store) ListAlerts() ([]model.Alert, error) {
	var out []model.Alert
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAlerts).ForEach(func(k, v []byte) error {
			var a model.Alert
			if err := json.Unmarshal(v, &a); err != nil {
				return nil
			}
			out = append(out, a)
			return nil
		})
	})
	sort.Slice(out, func(i, j int) bool { return out[i].TriggeredAt.After(out[j].TriggeredAt) })
	return out, err
}

// --- Alert channels ---

// SaveAlertChannel creates or updates a notification channel.
func (s *Store) SaveAlertChannel(c model.AlertChannel) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketAlertChannels, []byte(c.ID), c)
	})
}

// GetAlertChannel returns a channel by ID.
func (s *Store) GetAlertChannel(id string) (c model.AlertChannel, ok bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketAlertChannels).Get([]byte(id))
		if v == nil {
			return nil
		}
		ok = true
		return json.Unmarshal(v, &c)
	})
	return c, ok, err
}

// DeleteAlertChannel removes a channel.
func (s *Store) DeleteAlertChannel(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAlertChannels).Delete([]byte(id))
	})
}

// ListAlertChannels returns all notification channels.
func (s *Store) ListAlertChannels() ([]model.AlertChannel, error) {
	var out []model.AlertChannel
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAlertChannels).ForEach(func(k, v []byte) error {
			var c model.AlertChannel
			if err := json.Unmarshal(v, &c); err != nil {
				return nil
			}
			out = append(out, c)
			return nil
		})
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

// --- Log sinks ---

// SaveLogSink creates or updates a log sink.
func (s *Store) SaveLogSink(sink model.LogSink) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketLogSinks, []byte(sink.ID), sink)
	})
}

// GetLogSink returns a sink by ID.
func (s *Store) GetLogSink(id string) (sink model.LogSink, ok bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketLogSinks).Get([]byte(id))
		if v == nil {
			return nil
		}
		ok = true
		return json.Unmarshal(v, &sink)
	})
	return sink, ok, err
}

// DeleteLogSink removes a sink.
func (s *Store) DeleteLogSink(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketLogSinks).Delete([]byte(id))
	})
}

// ListLogSinks returns all log sinks.
func (s *Store) ListLogSinks() ([]model.LogSink, error) {
	var out []model.LogSink
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketLogSinks).ForEach(func(k, v []byte) error {
			var sink model.LogSink
			if err := json.Unmarshal(v, &sink); err != nil {
				return nil
			}
			out = append(out, sink)
			return nil
		})
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

// --- Settings ---

// SaveSetting stores a setting key-value pair.
func (s *Store) SaveSetting(key, value string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSettings).Put([]byte(key), []byte(value))
	})
}

// LoadSetting loads a setting by key. Returns "" if unset.
func (s *Store) LoadSetting(key string) (string, error) {
	var val string
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketSettings).Get([]byte(key))
		if v != nil {
			val = string(v)
		}
		return nil
	})
	return val, err
}

// --- API keys ---

// RegisterAPIKeyHash stores an accepted agent API key hash.
func (s *Store) RegisterAPIKeyHash(hash string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAPIKeys).Put([]byte(hash), []byte("1"))
	})
}

// IsAPIKeyHashRegistered checks whether a key hash is accepted.
func (s *Store) IsAPIKeyHashRegistered(hash string) (bool, error) {
	var ok bool
	err := s.db.View(func(tx *bolt.Tx) error {
		ok = tx.Bucket(bucketAPIKeys).Get([]byte(hash)) != nil
		return nil
	})
	return ok, err
}
