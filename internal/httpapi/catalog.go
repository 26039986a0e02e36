package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
)

func (s *Server) handleListStores(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.catalog.Stores())
}

func (s *Server) handleGetStore(w http.ResponseWriter, r *http.Request) {
	store, err := s.catalog.StoreByID(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, store)
}
