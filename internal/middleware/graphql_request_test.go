package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"orders-graphql/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescribeOperation(t *testing.T) {
	tests := []struct {
		name          string
		query         string
		operationName string
		want          RequestInfo
		ok            bool
	}{
		{
			name:  "anonymous query",
			query: `{ orders { id name } }`,
			want:  RequestInfo{OperationType: "query", Fields: 3, Depth: 2},
			ok:    true,
		},
		{
			name: "nested items",
			query: `query Aggregates {
				orders(limit: 1) {
					id
					address { city }
					items { itemName price quantity }
				}
			}`,
			want: RequestInfo{OperationType: "query", OperationName: "Aggregates", Fields: 8, Depth: 3},
			ok:   true,
		},
		{
			name: "fragments expand once",
			query: `query Q {
				a: orders { ...line }
				b: orders { ...line }
			}
			fragment line on Order { items { itemName } }`,
			want: RequestInfo{OperationType: "query", OperationName: "Q", Fields: 4, Depth: 3},
			ok:   true,
		},
		{
			name:          "named operation selected",
			query:         `query A { orders { id } } query B { simpleOrders { id name } }`,
			operationName: "B",
			want:          RequestInfo{OperationType: "query", OperationName: "B", Fields: 3, Depth: 2},
			ok:            true,
		},
		{
			name:          "missing operation",
			query:         `query A { orders { id } }`,
			operationName: "Nope",
		},
		{name: "empty", query: "  "},
		{name: "syntax error", query: `{ orders {`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := describeOperation(tt.query, tt.operationName)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestGraphQLRequestMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLogger(logging.Config{Level: "info", Format: "json", Output: &buf})

	var gotInfo RequestInfo
	var gotOK bool
	var gotBody string
	handler := GraphQLRequestMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotInfo, gotOK = RequestInfoFromContext(r.Context())
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		logging.FromContext(r.Context()).Info("resolving")
	}))

	payload := `{"query":"query Recent { orders { id } }","operationName":"Recent"}`
	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(payload))
	req = req.WithContext(logging.WithLogger(req.Context(), logger))
	req.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.True(t, gotOK)
	assert.Equal(t, "Recent", gotInfo.OperationName)
	assert.Equal(t, payload, gotBody, "body is restored for the GraphQL handler")
	assert.Contains(t, buf.String(), `"graphql_operation_name":"Recent"`)
	assert.Contains(t, buf.String(), `"graphql_operation_type":"query"`)
}

func TestReadGraphQLRequest(t *testing.T) {
	get := httptest.NewRequest(http.MethodGet, "/graphql?query="+url.QueryEscape("{ orders { id } }")+"&operationName=X", nil)
	query, name := readGraphQLRequest(get)
	assert.Equal(t, "{ orders { id } }", query)
	assert.Equal(t, "X", name)

	raw := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader("{ simpleOrders { id } }"))
	raw.Header.Set("Content-Type", "application/graphql")
	query, _ = readGraphQLRequest(raw)
	assert.Equal(t, "{ simpleOrders { id } }", query)

	put := httptest.NewRequest(http.MethodPut, "/graphql", strings.NewReader(`{"query":"{ orders { id } }"}`))
	query, _ = readGraphQLRequest(put)
	assert.Empty(t, query)
}
