package graph

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/gqlerrors"
	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"

	"github.com/neftie/neftie/backend/internal/metrics"
)

const maxRequestBytes = 1 << 20

type request struct {
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables"`
	OperationName string         `json:"operationName"`
}

// Handler serves GraphQL over HTTP: POST with a JSON body, or GET with the
// query in the URL for read-only operations.
type Handler struct {
	schema graphql.Schema
	log    *slog.Logger
}

func NewHandler(schema graphql.Schema, log *slog.Logger) *Handler {
	return &Handler{schema: schema, log: log}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req request
	switch r.Method {
	case http.MethodPost:
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.fail(w, http.StatusBadRequest, "request body must be JSON with a query")
			return
		}
	case http.MethodGet:
		q := r.URL.Query()
		req.Query = q.Get("query")
		req.OperationName = q.Get("operationName")
		if v := q.Get("variables"); v != "" {
			if err := json.Unmarshal([]byte(v), &req.Variables); err != nil {
				h.fail(w, http.StatusBadRequest, "variables must be a JSON object")
				return
			}
		}
	default:
		w.Header().Set("Allow", "GET, POST")
		h.fail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if req.Query == "" {
		h.fail(w, http.StatusBadRequest, "query is required")
		return
	}

	opType := operationType(req.Query, req.OperationName)
	if r.Method == http.MethodGet && opType == ast.OperationTypeMutation {
		metrics.GraphQLOperations.WithLabelValues(opType, "rejected").Inc()
		h.fail(w, http.StatusMethodNotAllowed, "mutations must be sent with POST")
		return
	}

	result := graphql.Do(graphql.Params{
		Schema:         h.schema,
		RequestString:  req.Query,
		VariableValues: req.Variables,
		OperationName:  req.OperationName,
		Context:        r.Context(),
	})

	status := "ok"
	if result.HasErrors() {
		status = "error"
	}
	metrics.GraphQLOperations.WithLabelValues(opType, status).Inc()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		h.log.ErrorContext(r.Context(), "failed to encode graphql response", "error", err)
	}
}

func (h *Handler) fail(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(graphql.Result{
		Errors: []gqlerrors.FormattedError{{Message: msg}},
	})
}

// operationType reports whether the selected operation is a query or a
// mutation, or "unknown" when the document does not parse.
func operationType(query, name string) string {
	doc, err := parser.Parse(parser.ParseParams{Source: query})
	if err != nil {
		return "unknown"
	}
	for _, def := range doc.Definitions {
		op, ok := def.(*ast.OperationDefinition)
		if !ok {
			continue
		}
		if name == "" || (op.Name != nil && op.Name.Value == name) {
			return op.Operation
		}
	}
	return "unknown"
}
