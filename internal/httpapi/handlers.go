package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/DoyleJ11/arena-harness/internal/arena"
	"github.com/DoyleJ11/arena-harness/internal/types"
)

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func Status(a *arena.Arena) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, ok := a.State(r.Context())
		if !ok {
			http.Error(w, "arena unavailable", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Status  string `json:"status"`
			Clients int    `json:"clients"`
			Version int    `json:"version"`
		}{Status: "ok", Clients: view.NumClients, Version: view.Version})
	}
}

func RegisterPlayer(a *arena.Arena) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var reg types.Registration
		if err := json.NewDecoder(r.Body).Decode(&reg); err != nil || reg.Username == "" {
			http.Error(w, "bad registration", http.StatusBadRequest)
			return
		}

		id, ok := a.Register(r.Context(), reg)
		if !ok {
			http.Error(w, "arena unavailable", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusCreated, types.RegistrationReply{PlayerID: id})
	}
}

func ServerInfo(a *arena.Arena, name, wsPath string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, ok := a.State(r.Context())
		if !ok {
			http.Error(w, "arena unavailable", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, types.ServerInfo{Name: name, Players: view.NumClients, WSPath: wsPath})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
