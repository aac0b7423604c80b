package api

import (
	"net/http"

	"github.com/nerrad567/gray-logic-gateways/internal/registry"
)

// handleListPeripherals returns every peripheral as a list representation.
func (s *Server) handleListPeripherals(w http.ResponseWriter, r *http.Request) {
	peripherals, err := s.registry.ListPeripherals(r.Context())
	if err != nil {
		s.writeRegistryError(w, r, err, "peripheral")
		return
	}
	writeJSON(w, http.StatusOK, peripherals)
}

// handleGetPeripheral returns a single peripheral's detail representation.
func (s *Server) handleGetPeripheral(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeNotFound(w, "peripheral not found")
		return
	}

	p, err := s.registry.GetPeripheral(r.Context(), id)
	if err != nil {
		s.writeRegistryError(w, r, err, "peripheral")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleCreatePeripheral validates and stores a peripheral.
func (s *Server) handleCreatePeripheral(w http.ResponseWriter, r *http.Request) {
	in, parsed, err := registry.ParsePeripheralInput(r.Body)
	if err != nil {
		s.writeRegistryError(w, r, err, "peripheral")
		return
	}

	p, err := s.registry.CreatePeripheral(r.Context(), in, parsed)
	if err != nil {
		s.writeRegistryError(w, r, err, "peripheral")
		return
	}

	w.Header().Set("Location", p.Links.Self)
	writeJSON(w, http.StatusCreated, p)
}

// handleDeletePeripheral removes a peripheral by ID.
func (s *Server) handleDeletePeripheral(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeNotFound(w, "peripheral not found")
		return
	}

	if err := s.registry.DeletePeripheral(r.Context(), id); err != nil {
		s.writeRegistryError(w, r, err, "peripheral")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
