package main

import "net/http"

//go:generate go tool templ generate

func (s *station) handleOverview(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	page := overviewPage(s.engine.Status(), s.table.List(), s.journal.Recent(), s.link.Peer(), s.actuator.Target())
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := page.Render(r.Context(), w); err != nil {
		s.log.Warn().Err(err).Msg("failed to render overview")
	}
}
