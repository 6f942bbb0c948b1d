package api

import (
	"database/sql"
	"fmt"
	"net/http"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/banshee-data/scantrack/internal/version"
)

// AttachDebugRoutes mounts the tsweb debug index on mux with the live
// shoot list, the pipeline counters and, when db is not nil, a tailsql
// console over the recorder database.
func (s *Server) AttachDebugRoutes(mux *http.ServeMux, db *sql.DB) error {
	debug := tsweb.Debugger(mux)

	debug.KV("Version", version.String())
	debug.KVFunc("Onboard computer", func() any { return s.onboard.Name() })
	debug.KVFunc("Tracking", func() any { return s.onboard.Tracking() })
	if s.stats != nil {
		debug.KVFunc("Frames", func() any { return s.stats().Frames })
		debug.KVFunc("Simulation time (s)", func() any { return s.stats().SimTime })
	}

	debug.Handle("shootlist", "Current shoot list (JSON)", http.HandlerFunc(s.showShootList))
	debug.Handle("tracks", "Tracks of one manager (JSON, ?manager=)", http.HandlerFunc(s.listTracks))
	if s.events != nil {
		debug.Handle("events", "Recent monitoring events (JSON)", http.HandlerFunc(s.listEvents))
	}

	if db == nil {
		return nil
	}
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://scantrack.db", db, &tailsql.DBOptions{
		Label: "Recorder DB",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())
	return nil
}
