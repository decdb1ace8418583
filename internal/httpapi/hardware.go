package httpapi

import "net/http"

func (s *Server) handleHardware(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Hardware)
}
