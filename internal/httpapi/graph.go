package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"rserv/internal/apperr"
	"rserv/internal/graphidx"
	"rserv/internal/query"
)

// parseNodeRef parses the "entity:id" <node_ref> path form; request bodies
// that carry separate entity/id fields use nodeRefBody instead.
func parseNodeRef(raw string) (graphidx.NodeRef, error) {
	parts := strings.SplitN(raw, ":", 2)
	if len(parts) != 2 {
		return graphidx.NodeRef{}, badRequest("node ref %q must be entity:id", raw)
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return graphidx.NodeRef{}, badRequest("node ref %q has a non-numeric id", raw)
	}
	return graphidx.NodeRef{Entity: parts[0], ID: id}, nil
}

type nodeRefBody struct {
	Entity string `json:"entity"`
	ID     int64  `json:"id"`
}

func (b nodeRefBody) ref() graphidx.NodeRef {
	return graphidx.NodeRef{Entity: b.Entity, ID: b.ID}
}

// defaultMaxDepth applies query.DefaultMaxDepth only when max_depth was
// absent from the request body; an explicit 0 is left as 0 so
// shortestPath/pathExists can return their documented start==end-only
// boundary behaviour instead of silently searching to depth 10.
func defaultMaxDepth(raw *int) int {
	if raw == nil {
		return query.DefaultMaxDepth
	}
	return *raw
}

func (s *Server) submitQuery(c echo.Context) error {
	var body struct {
		Query    string `json:"query"`
		MaxDepth int    `json:"max_depth"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest("invalid JSON body")
	}
	maxDepth := body.MaxDepth
	if maxDepth <= 0 {
		maxDepth = query.DefaultMaxDepth
	}

	job, cached, err := s.jobs.Submit(body.Query, maxDepth)
	if err != nil {
		return err
	}
	if cached {
		return writeSuccess(c, http.StatusOK, map[string]interface{}{
			"query_id": job.ID,
			"results":  job.Results,
		})
	}
	return writeSuccess(c, http.StatusAccepted, map[string]interface{}{"query_id": job.ID})
}

func (s *Server) queryStatus(c echo.Context) error {
	job, err := s.jobs.Status(c.Param("id"))
	if err != nil {
		return err
	}
	body := map[string]interface{}{
		"status":       job.Status,
		"submitted_at": job.SubmittedAt,
		"stats":        map[string]int{"row_count": len(job.Results)},
	}
	if job.FinishedAt != nil {
		body["finished_at"] = *job.FinishedAt
	}
	return writeSuccess(c, http.StatusOK, body)
}

func (s *Server) queryResult(c echo.Context) error {
	job, err := s.jobs.Result(c.Param("id"))
	if err != nil {
		return err
	}
	if job.Err != nil {
		return job.Err
	}
	return writeSuccess(c, http.StatusOK, map[string]interface{}{"results": job.Results})
}

func (s *Server) shortestPath(c echo.Context) error {
	var body struct {
		Entity   string `json:"entity"`
		Start    int64  `json:"start"`
		End      int64  `json:"end"`
		MaxDepth *int   `json:"max_depth"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest("invalid JSON body")
	}
	maxDepth := defaultMaxDepth(body.MaxDepth)

	start := graphidx.NodeRef{Entity: body.Entity, ID: body.Start}
	end := graphidx.NodeRef{Entity: body.Entity, ID: body.End}
	path, ok := s.index.ShortestPath(start, end, maxDepth)
	if !ok {
		return apperr.NotFound("no path from %v to %v within max_depth %d", start, end, maxDepth)
	}

	ids := make([]int64, len(path))
	for i, step := range path {
		ids[i] = step.Node.ID
	}
	return writeSuccess(c, http.StatusOK, map[string]interface{}{"path": ids})
}

func (s *Server) pathExists(c echo.Context) error {
	var body struct {
		Entity   string `json:"entity"`
		Start    int64  `json:"start"`
		End      int64  `json:"end"`
		MaxDepth *int   `json:"max_depth"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest("invalid JSON body")
	}
	maxDepth := defaultMaxDepth(body.MaxDepth)
	start := graphidx.NodeRef{Entity: body.Entity, ID: body.Start}
	end := graphidx.NodeRef{Entity: body.Entity, ID: body.End}
	exists := s.index.PathExists(start, end, maxDepth)
	return writeSuccess(c, http.StatusOK, map[string]interface{}{"exists": exists})
}

func (s *Server) commonNeighbors(c echo.Context) error {
	var body struct {
		A nodeRefBody `json:"a"`
		B nodeRefBody `json:"b"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest("invalid JSON body")
	}
	neighbors := s.index.CommonNeighbors(body.A.ref(), body.B.ref())
	return writeSuccess(c, http.StatusOK, map[string]interface{}{"common_neighbors": neighbors})
}

func (s *Server) getNode(c echo.Context) error {
	ref, err := parseNodeRef(c.Param("ref"))
	if err != nil {
		return err
	}
	props, ok := s.index.Properties(ref.Entity, ref.ID)
	if !ok {
		return apperr.NotFound("node %s:%d not found", ref.Entity, ref.ID)
	}
	return writeSuccess(c, http.StatusOK, props)
}

func (s *Server) nodeDegree(c echo.Context) error {
	ref, err := parseNodeRef(c.Param("ref"))
	if err != nil {
		return err
	}
	dir := graphidx.Direction(c.QueryParam("direction"))
	if dir == "" {
		dir = graphidx.DirAll
	}
	degree := s.index.Degree(ref.Entity, ref.ID, dir)
	return writeSuccess(c, http.StatusOK, map[string]interface{}{"degree": degree})
}

func (s *Server) neighborhoodAggregate(c echo.Context) error {
	var body struct {
		Entity      string `json:"entity"`
		ID          int64  `json:"id"`
		Depth       int    `json:"depth"`
		Property    string `json:"property"`
		Aggregation string `json:"aggregation"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest("invalid JSON body")
	}
	node := graphidx.NodeRef{Entity: body.Entity, ID: body.ID}
	result, err := s.index.NeighborhoodAggregate(node, body.Depth, body.Property, graphidx.Aggregation(body.Aggregation))
	if err != nil {
		return err
	}
	return writeSuccess(c, http.StatusOK, map[string]interface{}{"result": result})
}

func (s *Server) statistics(c echo.Context) error {
	nodeCount, edgeCount, avgOutDegree := s.index.Statistics()
	return writeSuccess(c, http.StatusOK, map[string]interface{}{
		"node_count":     nodeCount,
		"edge_count":     edgeCount,
		"avg_out_degree": avgOutDegree,
	})
}

func (s *Server) nodeInbound(c echo.Context) error {
	ref, err := parseNodeRef(c.Param("ref"))
	if err != nil {
		return err
	}
	edges := s.index.Inbound(ref.Entity, ref.ID, nil)
	return writeSuccess(c, http.StatusOK, map[string]interface{}{"edges": edges})
}

func (s *Server) nodeOutbound(c echo.Context) error {
	ref, err := parseNodeRef(c.Param("ref"))
	if err != nil {
		return err
	}
	edges := s.index.Outbound(ref.Entity, ref.ID, nil)
	return writeSuccess(c, http.StatusOK, map[string]interface{}{"edges": edges})
}
