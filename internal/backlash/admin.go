package backlash

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"
)

// AttachAdminRoutes mounts a live SQL browser over the backlash log,
// plus a JSON quantile-summary endpoint, on mux's debug handler set.
func (l *Logger) AttachAdminRoutes(mux *http.ServeMux, dbPath string) {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("backlash: failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://"+dbPath, l.db, &tailsql.DBOptions{
		Label: "Backlash log",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backlash-summary", "Per-axis dead-zone quantile summary (JSON)", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		summary, err := l.Summary()
		if err != nil {
			http.Error(w, fmt.Sprintf("backlash: summary: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(summary); err != nil {
			http.Error(w, fmt.Sprintf("backlash: encode: %v", err), http.StatusInternalServerError)
		}
	}))
}
