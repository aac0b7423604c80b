package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-gateways/internal/registry"
)

// pathID parses the {id} URL parameter. A non-numeric id cannot name a
// stored record, so callers answer 404 when ok is false.
func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// handleListGateways returns every gateway as a list representation.
func (s *Server) handleListGateways(w http.ResponseWriter, r *http.Request) {
	gateways, err := s.registry.ListGateways(r.Context())
	if err != nil {
		s.writeRegistryError(w, r, err, "gateway")
		return
	}
	writeJSON(w, http.StatusOK, gateways)
}

// handleGetGateway returns a single gateway's detail representation.
func (s *Server) handleGetGateway(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeNotFound(w, "gateway not found")
		return
	}

	gw, err := s.registry.GetGateway(r.Context(), id)
	if err != nil {
		s.writeRegistryError(w, r, err, "gateway")
		return
	}
	writeJSON(w, http.StatusOK, gw)
}

// handleGatewayPeripherals lists the peripherals attached to a gateway.
func (s *Server) handleGatewayPeripherals(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeNotFound(w, "gateway not found")
		return
	}

	peripherals, err := s.registry.GatewayPeripherals(r.Context(), id)
	if err != nil {
		s.writeRegistryError(w, r, err, "gateway")
		return
	}
	writeJSON(w, http.StatusOK, peripherals)
}

// handleCreateGateway validates and stores a gateway.
// Responds 201 with the detail representation and a Location header.
func (s *Server) handleCreateGateway(w http.ResponseWriter, r *http.Request) {
	in, parsed, err := registry.ParseGatewayInput(r.Body)
	if err != nil {
		s.writeRegistryError(w, r, err, "gateway")
		return
	}

	gw, err := s.registry.CreateGateway(r.Context(), in, parsed)
	if err != nil {
		s.writeRegistryError(w, r, err, "gateway")
		return
	}

	w.Header().Set("Location", gw.Links.Self)
	writeJSON(w, http.StatusCreated, gw)
}
