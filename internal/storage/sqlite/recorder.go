// Package sqlite records detections and track lifecycle events into a
// sqlite database, one row per notification, keyed by a run id.
//
// A Recorder is a sensor.DetectionListener; Tracks(name) returns the
// tracking.Listener for one manager. Detections arrive on the
// time-critical lane and only enter a bounded queue there; the recorder
// runs on the background lane, where UpdateData drains that queue and
// writes rows in batches inside a transaction. Write failures are
// reported to the monitoring collaborator and never reach the frame loop.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
	"gonum.org/v1/gonum/spatial/r3"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/scantrack/internal/monitoring"
	"github.com/banshee-data/scantrack/internal/queue"
	"github.com/banshee-data/scantrack/internal/sensor"
	"github.com/banshee-data/scantrack/internal/tracking"
)

// DefaultBatchSize is the number of buffered rows that triggers a write.
const DefaultBatchSize = 256

// DefaultQueueCapacity bounds the detections waiting for the background
// lane.
const DefaultQueueCapacity = 4096

// Track event names stored in track_events.event.
const (
	EventNew     = "new"
	EventUpdate  = "update"
	EventRemoved = "removed"
)

// DetectionPayload is the msgpack blob stored with each detection.
type DetectionPayload struct {
	RangeRate float64 `msgpack:"range_rate"`
	IFF       int     `msgpack:"iff"`
	Ground    bool    `msgpack:"ground"`
}

// TrackPayload is the msgpack blob stored with each track event.
type TrackPayload struct {
	Type         string     `msgpack:"type"`
	Class        string     `msgpack:"class"`
	Position     [3]float64 `msgpack:"pos"`
	Velocity     [3]float64 `msgpack:"vel"`
	Acceleration [3]float64 `msgpack:"acc"`
	RangeRate    float64    `msgpack:"range_rate"`
	AzRate       float64    `msgpack:"az_rate"`
	ElRate       float64    `msgpack:"el_rate"`
	Age          float64    `msgpack:"age"`
	IFF          int        `msgpack:"iff"`
	Signal       []float64  `msgpack:"signal"`
	SensorID     string     `msgpack:"sensor_id"`
	TargetID     int        `msgpack:"target_id"`
	Updates      int        `msgpack:"updates"`
}

// TrackEvent is one decoded track_events row.
type TrackEvent struct {
	Manager     string
	Event       string
	TrackID     int
	SimTime     float64
	Range       float64
	Az, El      float64
	GroundSpeed float64
	Quality     float64
	ShootRank   int
	Payload     TrackPayload
}

type detectionRow struct {
	r       sensor.Report
	payload []byte
}

type trackRow struct {
	manager string
	event   string
	t       tracking.Track
	payload []byte
}

// Recorder writes notifications for one run.
type Recorder struct {
	db       *sql.DB
	runID    uuid.UUID
	reporter monitoring.Reporter

	incoming atomic.Pointer[queue.Bounded[sensor.Report]]
	lost     atomic.Int64 // detections refused by a full queue, not yet counted
	closed   atomic.Bool

	mu         sync.Mutex
	batchSize  int
	detections []detectionRow
	tracks     []trackRow
	written    int
	dropped    int
}

// Open opens (or creates) the database at path, migrates it to the latest
// schema and registers a new run labelled label.
func Open(path, label string, reporter monitoring.Reporter) (*Recorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// modernc connections do not share an in-memory database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}

	r := &Recorder{
		db:        db,
		runID:     uuid.New(),
		reporter:  reporter,
		batchSize: DefaultBatchSize,
	}
	r.incoming.Store(queue.New[sensor.Report](DefaultQueueCapacity))
	if _, err := db.Exec(`INSERT INTO runs (run_id, label) VALUES (?, ?)`, r.runID.String(), label); err != nil {
		db.Close()
		return nil, fmt.Errorf("register run: %w", err)
	}
	opsf("recording run %s (%s) to %s", r.runID, label, path)
	return r, nil
}

// RunID identifies the rows written by this recorder.
func (r *Recorder) RunID() uuid.UUID { return r.runID }

// DB exposes the handle for read-only consumers such as the debug server.
func (r *Recorder) DB() *sql.DB { return r.db }

// SetBatchSize sets the buffered row count that triggers a write. n < 1
// is rejected.
func (r *Recorder) SetBatchSize(n int) bool {
	if n < 1 {
		monitoring.Warnf(r.reporter, monitoring.KindConfig, "recorder", "batch size %d rejected", n)
		return false
	}
	r.mu.Lock()
	r.batchSize = n
	r.mu.Unlock()
	return true
}

// SetQueueCapacity replaces the detection queue with one holding n
// reports. Queued detections are discarded, so call it before the run.
func (r *Recorder) SetQueueCapacity(n int) bool {
	if n < 1 {
		monitoring.Warnf(r.reporter, monitoring.KindConfig, "recorder", "queue capacity %d rejected", n)
		return false
	}
	r.incoming.Store(queue.New[sensor.Report](n))
	return true
}

// Stats returns the rows written and the rows lost to a full queue or to
// write failures.
func (r *Recorder) Stats() (written, dropped int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written, r.dropped + int(r.lost.Load())
}

// Name identifies the recorder on the background lane.
func (r *Recorder) Name() string { return "recorder" }

// Reset discards queued detections. Buffered rows are kept for the next
// write.
func (r *Recorder) Reset() { r.incoming.Load().Clear() }

// NewDetection queues rep for the background lane. It never blocks; when
// the queue is full rep is counted as dropped.
func (r *Recorder) NewDetection(rep sensor.Report) {
	if r.closed.Load() {
		return
	}
	if !r.incoming.Load().Put(rep) {
		r.lost.Add(1)
	}
}

// UpdateData drains queued detections into the row buffer and writes a
// batch once enough rows are buffered.
func (r *Recorder) UpdateData(float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed.Load() {
		return
	}
	r.drainLocked()
	r.maybeFlushLocked()
}

func (r *Recorder) drainLocked() {
	q := r.incoming.Load()
	for {
		rep, ok := q.Get()
		if !ok {
			break
		}
		payload, err := msgpack.Marshal(DetectionPayload{RangeRate: rep.RangeRate, IFF: rep.IFF, Ground: rep.Ground})
		if err != nil {
			r.dropped++
			monitoring.Errorf(r.reporter, monitoring.KindResource, "recorder", "encode detection: %v", err)
			continue
		}
		r.detections = append(r.detections, detectionRow{r: rep, payload: payload})
	}
	if n := r.lost.Swap(0); n > 0 {
		r.dropped += int(n)
		monitoring.Warnf(r.reporter, monitoring.KindResource, "recorder", "%d detections dropped, queue full", n)
	}
}

// Tracks returns the listener that records events from the named manager.
func (r *Recorder) Tracks(manager string) tracking.Listener {
	return trackListener{r: r, manager: manager}
}

type trackListener struct {
	r       *Recorder
	manager string
}

func (l trackListener) NewTrack(t tracking.Track)     { l.r.addTrack(l.manager, EventNew, t) }
func (l trackListener) UpdateTrack(t tracking.Track)  { l.r.addTrack(l.manager, EventUpdate, t) }
func (l trackListener) RemovedTrack(t tracking.Track) { l.r.addTrack(l.manager, EventRemoved, t) }

func vec3(v r3.Vec) [3]float64 { return [3]float64{v.X, v.Y, v.Z} }

func (r *Recorder) addTrack(manager, event string, t tracking.Track) {
	payload, err := msgpack.Marshal(TrackPayload{
		Type:         t.Type.String(),
		Class:        t.Class.String(),
		Position:     vec3(t.Position),
		Velocity:     vec3(t.Velocity),
		Acceleration: vec3(t.Acceleration),
		RangeRate:    t.RangeRate,
		AzRate:       t.AzRate,
		ElRate:       t.ElRate,
		Age:          t.Age,
		IFF:          t.IFF,
		Signal:       t.Signal.Values(),
		SensorID:     t.SensorID,
		TargetID:     t.TargetID,
		Updates:      t.Updates,
	})
	if err != nil {
		monitoring.Errorf(r.reporter, monitoring.KindResource, "recorder", "encode track %d: %v", t.ID, err)
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed.Load() {
		return
	}
	r.tracks = append(r.tracks, trackRow{manager: manager, event: event, t: t, payload: payload})
	r.maybeFlushLocked()
}

func (r *Recorder) maybeFlushLocked() {
	if len(r.detections)+len(r.tracks) < r.batchSize {
		return
	}
	if err := r.flushLocked(); err != nil {
		monitoring.Errorf(r.reporter, monitoring.KindResource, "recorder", "%v", err)
	}
}

// Flush drains the detection queue and writes every buffered row.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drainLocked()
	return r.flushLocked()
}

func (r *Recorder) flushLocked() error {
	n := len(r.detections) + len(r.tracks)
	if n == 0 {
		return nil
	}
	err := r.write()
	if err != nil {
		r.dropped += n
		opsf("dropped %d rows: %v", n, err)
	} else {
		r.written += n
		tracef("wrote %d rows", n)
	}
	r.detections = r.detections[:0]
	r.tracks = r.tracks[:0]
	return err
}

func (r *Recorder) write() error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	run := r.runID.String()
	if len(r.detections) > 0 {
		stmt, err := tx.Prepare(`INSERT INTO detections (
			run_id, sensor_id, seq, kind, sim_time, snr, az, el, range_m, target_id, payload
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare detections: %w", err)
		}
		defer stmt.Close()
		for _, d := range r.detections {
			rep := d.r
			if _, err := stmt.Exec(run, rep.SensorID, int64(rep.Seq), rep.Kind.String(), rep.Time,
				rep.SNR, rep.Az, rep.El, rep.Range, rep.TargetID, d.payload); err != nil {
				return fmt.Errorf("insert detection: %w", err)
			}
		}
	}
	if len(r.tracks) > 0 {
		stmt, err := tx.Prepare(`INSERT INTO track_events (
			run_id, manager, event, track_id, sim_time, range_m, az, el, ground_speed, quality, shoot_rank, payload
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare track events: %w", err)
		}
		defer stmt.Close()
		for _, row := range r.tracks {
			t := row.t
			if _, err := stmt.Exec(run, row.manager, row.event, t.ID, t.LastUpdate, t.Range, t.Az, t.El,
				t.GroundSpeed, t.Quality, t.ShootListIndex, row.payload); err != nil {
				return fmt.Errorf("insert track event: %w", err)
			}
		}
	}
	return tx.Commit()
}

// Close flushes and closes the database. Notifications after Close are
// ignored.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed.Swap(true) {
		r.mu.Unlock()
		return nil
	}
	r.drainLocked()
	err := r.flushLocked()
	r.mu.Unlock()
	return errors.Join(err, r.db.Close())
}

// DetectionCount returns the number of detections stored for this run,
// optionally restricted to one sensor.
func (r *Recorder) DetectionCount(ctx context.Context, sensorID string) (int, error) {
	q := `SELECT COUNT(*) FROM detections WHERE run_id = ?`
	args := []interface{}{r.runID.String()}
	if sensorID != "" {
		q += ` AND sensor_id = ?`
		args = append(args, sensorID)
	}
	var n int
	if err := r.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// TrackHistory returns the stored events for one track of one manager in
// insertion order.
func (r *Recorder) TrackHistory(ctx context.Context, manager string, trackID int) ([]TrackEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT manager, event, track_id, sim_time, range_m, az, el, ground_speed, quality, shoot_rank, payload
		FROM track_events
		WHERE run_id = ? AND manager = ? AND track_id = ?
		ORDER BY rowid`, r.runID.String(), manager, trackID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TrackEvent
	for rows.Next() {
		var ev TrackEvent
		var payload []byte
		if err := rows.Scan(&ev.Manager, &ev.Event, &ev.TrackID, &ev.SimTime, &ev.Range, &ev.Az, &ev.El,
			&ev.GroundSpeed, &ev.Quality, &ev.ShootRank, &payload); err != nil {
			return nil, err
		}
		if err := msgpack.Unmarshal(payload, &ev.Payload); err != nil {
			return nil, fmt.Errorf("decode payload for track %d: %w", ev.TrackID, err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
