package httpapi

import (
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"rserv/internal/apperr"
)

func parseID(c echo.Context, param string) (int64, error) {
	raw := c.Param(param)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, badRequest("invalid id %q", raw)
	}
	return id, nil
}

func (s *Server) createDocument(c echo.Context) error {
	entity := c.Param("entity")
	var body map[string]interface{}
	if err := c.Bind(&body); err != nil {
		return badRequest("invalid JSON body")
	}

	id, stored, err := s.store.Create(entity, body)
	if err != nil {
		return err
	}
	_ = s.searchIndexer.Index(entity, id, stored)
	return writeSuccess(c, http.StatusCreated, stored)
}

func (s *Server) saveDocument(c echo.Context) error {
	entity := c.Param("entity")
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var body map[string]interface{}
	if err := c.Bind(&body); err != nil {
		return badRequest("invalid JSON body")
	}

	stored, err := s.store.Save(entity, id, body)
	if err != nil {
		return err
	}
	_ = s.searchIndexer.Index(entity, id, stored)
	return writeSuccess(c, http.StatusCreated, stored)
}

func (s *Server) getDocument(c echo.Context) error {
	entity := c.Param("entity")
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	doc, err := s.store.Get(entity, id)
	if err != nil {
		return err
	}
	return writeSuccess(c, http.StatusOK, doc)
}

func (s *Server) replaceDocument(c echo.Context) error {
	entity := c.Param("entity")
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var body map[string]interface{}
	if err := c.Bind(&body); err != nil {
		return badRequest("invalid JSON body")
	}

	stored, err := s.store.Replace(entity, id, body)
	if err != nil {
		return err
	}
	_ = s.searchIndexer.Index(entity, id, stored)
	return writeSuccess(c, http.StatusOK, stored)
}

func (s *Server) patchDocument(c echo.Context) error {
	entity := c.Param("entity")
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var partial map[string]interface{}
	if err := c.Bind(&partial); err != nil {
		return badRequest("invalid JSON body")
	}

	stored, err := s.store.Patch(entity, id, partial)
	if err != nil {
		return err
	}
	_ = s.searchIndexer.Index(entity, id, stored)
	return writeSuccess(c, http.StatusOK, stored)
}

func (s *Server) deleteDocument(c echo.Context) error {
	entity := c.Param("entity")
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	cascade := c.QueryParam("cascading_delete") == "true" || c.QueryParam("cascade") == "true"

	if err := s.store.Delete(entity, id, cascade); err != nil {
		return err
	}
	_ = s.searchIndexer.Delete(entity, id)
	return writeSuccess(c, http.StatusOK, map[string]interface{}{"deleted": true})
}

// sortSpec is one "field:asc"/"field:desc" term from ?sort=.
type sortSpec struct {
	field string
	desc  bool
}

func parseSortSpec(raw string) []sortSpec {
	if raw == "" {
		return nil
	}
	var specs []sortSpec
	for _, term := range strings.Split(raw, ",") {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		parts := strings.SplitN(term, ":", 2)
		spec := sortSpec{field: parts[0]}
		if len(parts) == 2 && strings.EqualFold(parts[1], "desc") {
			spec.desc = true
		}
		specs = append(specs, spec)
	}
	return specs
}

func (s *Server) listDocuments(c echo.Context) error {
	entity := c.Param("entity")
	page, perPage := s.pagination(c)

	ids, err := s.store.ListIDs(entity)
	if err != nil {
		return err
	}

	docs := make([]map[string]interface{}, 0, len(ids))
	for _, id := range ids {
		doc, err := s.store.Get(entity, id)
		if err != nil {
			continue
		}
		docs = append(docs, doc)
	}

	specs := parseSortSpec(c.QueryParam("sort"))
	if len(specs) > 0 {
		sort.SliceStable(docs, func(i, j int) bool {
			for _, spec := range specs {
				cmp := compareFieldValues(docs[i][spec.field], docs[j][spec.field])
				if cmp == 0 {
					continue
				}
				if spec.desc {
					return cmp > 0
				}
				return cmp < 0
			}
			return false
		})
	}

	start, end := pageBounds(len(docs), page, perPage)
	return writeSuccess(c, http.StatusOK, map[string]interface{}{
		"items":    docs[start:end],
		"page":     page,
		"per_page": perPage,
		"total":    len(docs),
	})
}

func (s *Server) searchDocuments(c echo.Context) error {
	entity := c.Param("entity")
	query := c.QueryParam("query")
	field := c.QueryParam("field")
	page, perPage := s.pagination(c)

	ids, err := s.searchIndexer.Query(entity, field, query, page, perPage)
	if err != nil {
		return apperr.Wrap(apperr.KindStorage, err, "search failed")
	}

	docs := make([]map[string]interface{}, 0, len(ids))
	for _, id := range ids {
		doc, err := s.store.Get(entity, id)
		if err != nil {
			continue
		}
		docs = append(docs, doc)
	}
	return writeSuccess(c, http.StatusOK, map[string]interface{}{
		"items":    docs,
		"page":     page,
		"per_page": perPage,
	})
}

func (s *Server) pagination(c echo.Context) (page, perPage int) {
	page = 1
	if v, err := strconv.Atoi(c.QueryParam("page")); err == nil && v > 0 {
		page = v
	}
	perPage = s.defaultPage
	if v, err := strconv.Atoi(c.QueryParam("per_page")); err == nil && v > 0 {
		perPage = v
	}
	return page, perPage
}

func pageBounds(total, page, perPage int) (start, end int) {
	start = (page - 1) * perPage
	if start > total {
		start = total
	}
	end = start + perPage
	if end > total {
		end = total
	}
	return start, end
}

func compareFieldValues(a, b interface{}) int {
	af, aok := a.(float64)
	bf, bok := b.(float64)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	as := toStr(a)
	bs := toStr(b)
	return strings.Compare(as, bs)
}

func toStr(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
