package mailbox

import (
	"encoding/binary"
	"fmt"
	"net/http"

	"tailscale.com/tsweb"
)

// AttachAdminRoutes mounts read-only debug endpoints exposing the
// mailbox's current state, following the same tsweb.Debugger pattern
// used elsewhere in this module for hardware-adjacent admin surfaces.
func (m *Mailbox) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.HandleSilentFunc("mailbox-state", func(w http.ResponseWriter, r *http.Request) {
		b := m.region.Bytes()
		fmt.Fprintf(w, "magic=%#x ms=%d m1_steps=%d m2_steps=%d flags=%#x ok=%d\n",
			binary.LittleEndian.Uint32(b[offMagic:]),
			binary.LittleEndian.Uint16(b[offMs:]),
			binary.LittleEndian.Uint16(b[offM1:]),
			binary.LittleEndian.Uint16(b[offM2:]),
			binary.LittleEndian.Uint16(b[offFlags:]),
			binary.LittleEndian.Uint16(b[offOk:]),
		)
		fmt.Fprintf(w, "m1_limit=%d m2_limit=%d last_m1=%d last_m2=%d\n", m.m1Limit, m.m2Limit, m.lastM1, m.lastM2)
	})
}
