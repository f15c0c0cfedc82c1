package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"floracore/internal/entitymodel"
	"floracore/pkg/domain"
)

const maxBodyBytes = 10 << 20

// resource wires one entity kind's CRUD surface onto the router. The
// closures are the service methods and store accessors for that kind.
type resource[T any] struct {
	path   string
	kind   domain.EntityType
	list   func() []T
	get    func(id string) (T, bool)
	create func(ctx context.Context, entity T) (T, domain.Result, error)
	update func(ctx context.Context, id string, apply func(*T) error) (T, domain.Result, error)
	remove func(ctx context.Context, id string) (domain.Result, error)
}

func registerResource[T any](api *mux.Router, res resource[T]) {
	base := "/" + res.path
	api.HandleFunc(base, func(w http.ResponseWriter, r *http.Request) {
		listEntities(res, w, r)
	}).Methods(http.MethodGet)
	api.HandleFunc(base, func(w http.ResponseWriter, r *http.Request) {
		createEntity(res, w, r)
	}).Methods(http.MethodPost)
	api.HandleFunc(base+"/{id}", func(w http.ResponseWriter, r *http.Request) {
		getEntity(res, w, r)
	}).Methods(http.MethodGet)
	api.HandleFunc(base+"/{id}", func(w http.ResponseWriter, r *http.Request) {
		updateEntity(res, w, r)
	}).Methods(http.MethodPut)
	api.HandleFunc(base+"/{id}", func(w http.ResponseWriter, r *http.Request) {
		deleteEntity(res, w, r)
	}).Methods(http.MethodDelete)
}

// listEntities returns the full table, optionally narrowed by query
// parameters naming registry columns (?epithet=Rosaceae). Unknown
// columns are rejected so a typo fails loudly instead of matching
// everything.
func listEntities[T any](res resource[T], w http.ResponseWriter, r *http.Request) {
	filters := map[string]string{}
	if query := r.URL.Query(); len(query) > 0 {
		desc, ok := entitymodel.LookupEntity(res.kind)
		if !ok {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("no registry descriptor for %s", res.kind))
			return
		}
		for column := range query {
			if _, ok := desc.Field(column); !ok {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown filter column %q for %s", column, res.kind))
				return
			}
			filters[column] = query.Get(column)
		}
	}
	items := res.list()
	filtered := make([]T, 0, len(items))
	for _, item := range items {
		if len(filters) == 0 || matchesFilters(item, filters) {
			filtered = append(filtered, item)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": filtered})
}

// matchesFilters compares filter values against the entity's JSON
// document by string form, so numeric and boolean columns match their
// query encoding. Null columns compare as the empty string.
func matchesFilters[T any](entity T, filters map[string]string) bool {
	raw, err := json.Marshal(entity)
	if err != nil {
		return false
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return false
	}
	for column, want := range filters {
		got := ""
		if v, ok := doc[column]; ok && v != nil {
			got = fmt.Sprintf("%v", v)
		}
		if got != want {
			return false
		}
	}
	return true
}

func createEntity[T any](res resource[T], w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	var entity T
	if err := json.Unmarshal(body, &entity); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	created, _, err := res.create(r.Context(), entity)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func getEntity[T any](res resource[T], w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	entity, ok := res.get(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("%s %s not found", res.kind, id))
		return
	}
	writeJSON(w, http.StatusOK, entity)
}

// updateEntity decodes the request body over the current record inside
// the transaction, so omitted fields keep their stored values.
func updateEntity[T any](res resource[T], w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	var probe T
	if err := json.Unmarshal(body, &probe); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if _, ok := res.get(id); !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("%s %s not found", res.kind, id))
		return
	}
	updated, _, err := res.update(r.Context(), id, func(target *T) error {
		return json.Unmarshal(body, target)
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func deleteEntity[T any](res resource[T], w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, ok := res.get(id); !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("%s %s not found", res.kind, id))
		return
	}
	if _, err := res.remove(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) registerEntityRoutes(api *mux.Router) {
	store := s.svc.Store()

	registerResource(api, resource[domain.Family]{
		path:   "families",
		kind:   domain.EntityFamily,
		list:   store.ListFamilies,
		get:    store.GetFamily,
		create: s.svc.CreateFamily,
		update: s.svc.UpdateFamily,
		remove: s.svc.DeleteFamily,
	})
	registerResource(api, resource[domain.Genus]{
		path:   "genera",
		kind:   domain.EntityGenus,
		list:   store.ListGenera,
		get:    store.GetGenus,
		create: s.svc.CreateGenus,
		update: s.svc.UpdateGenus,
		remove: s.svc.DeleteGenus,
	})
	registerResource(api, resource[domain.Species]{
		path:   "species",
		kind:   domain.EntitySpecies,
		list:   store.ListSpecies,
		get:    store.GetSpecies,
		create: s.svc.CreateSpecies,
		update: s.svc.UpdateSpecies,
		remove: s.svc.DeleteSpecies,
	})
	registerResource(api, resource[domain.VernacularName]{
		path:   "vernaculars",
		kind:   domain.EntityVernacularName,
		list:   store.ListVernacularNames,
		get:    store.GetVernacularName,
		create: s.svc.CreateVernacularName,
		update: s.svc.UpdateVernacularName,
		remove: s.svc.DeleteVernacularName,
	})
	registerResource(api, resource[domain.Geography]{
		path:   "geographies",
		kind:   domain.EntityGeography,
		list:   store.ListGeographies,
		get:    store.GetGeography,
		create: s.svc.CreateGeography,
		update: s.svc.UpdateGeography,
		remove: s.svc.DeleteGeography,
	})
	registerResource(api, resource[domain.Accession]{
		path:   "accessions",
		kind:   domain.EntityAccession,
		list:   store.ListAccessions,
		get:    store.GetAccession,
		create: s.svc.CreateAccession,
		update: s.svc.UpdateAccession,
		remove: s.svc.DeleteAccession,
	})
	registerResource(api, resource[domain.Plant]{
		path:   "plants",
		kind:   domain.EntityPlant,
		list:   store.ListPlants,
		get:    store.GetPlant,
		create: s.svc.CreatePlant,
		update: s.svc.UpdatePlant,
		remove: s.svc.DeletePlant,
	})
	registerResource(api, resource[domain.Location]{
		path:   "locations",
		kind:   domain.EntityLocation,
		list:   store.ListLocations,
		get:    store.GetLocation,
		create: s.svc.CreateLocation,
		update: s.svc.UpdateLocation,
		remove: s.svc.DeleteLocation,
	})
	registerResource(api, resource[domain.SourceDetail]{
		path:   "source-details",
		kind:   domain.EntitySourceDetail,
		list:   store.ListSourceDetails,
		get:    store.GetSourceDetail,
		create: s.svc.CreateSourceDetail,
		update: s.svc.UpdateSourceDetail,
		remove: s.svc.DeleteSourceDetail,
	})
}
