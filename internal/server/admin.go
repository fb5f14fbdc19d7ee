package server

import (
	"net/http"
	"time"

	"github.com/mgarrido/lumicat/internal/api"
	"github.com/mgarrido/lumicat/internal/logging"
)

// Admin handlers. The gate has already verified the admin key by the time
// these run.

func (s *Server) handleListBans(w http.ResponseWriter, r *http.Request) {
	bans := s.Gate.Bans().ListActive(time.Now())
	if bans == nil {
		bans = []string{}
	}
	writeJSON(w, http.StatusOK, api.ListBansResponse{Bans: bans})
}

func (s *Server) handleUnban(w http.ResponseWriter, r *http.Request) {
	ip := r.PathValue("ip")
	if ip == "" {
		writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Detail: "ip required"})
		return
	}

	removed := s.Gate.Bans().Unban(ip)
	if !removed {
		writeJSON(w, http.StatusNotFound, api.ErrorResponse{Detail: "ip " + ip + " is not banned"})
		return
	}

	s.Logger.Info("ip unbanned", logging.Event("ip_unbanned"), logging.RemoteIP(ip))
	writeJSON(w, http.StatusOK, api.UnbanResponse{IP: ip, Removed: true})
}
