package api

import (
	"context"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/sieve/internal/catalog"
	"github.com/solatis/sieve/internal/core/auth"
	"github.com/solatis/sieve/internal/core/config"
	"github.com/solatis/sieve/internal/core/db"
	"github.com/solatis/sieve/internal/query"
	"github.com/solatis/sieve/internal/rules"
)

var seededAt = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, maxRows int) *FilterService {
	t.Helper()
	ctx := context.Background()

	database, err := db.Open(ctx, "sqlite://"+filepath.Join(t.TempDir(), "sieve.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	_, err = db.MigrateUp(ctx, database)
	require.NoError(t, err)
	_, err = db.Seed(ctx, database, seededAt)
	require.NoError(t, err)

	cat, err := catalog.Default()
	require.NoError(t, err)

	compiler := rules.NewCompiler(rules.WithClock(rules.FixedClock(seededAt)))
	cfg := config.ServerConfig{RequestTimeout: 5 * time.Second, MaxRows: maxRows}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc, err := NewFilterService(database, query.SQLite, cat, compiler, cfg, logger)
	require.NoError(t, err)
	return svc
}

func newTestClient(t *testing.T, svc FilterServer) *FilterClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)

	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(auth.NewExtractor(ServiceName).UnaryInterceptor()))
	RegisterFilterServer(srv, svc)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewFilterClient(conn)
}

func as(owner string, kv ...string) context.Context {
	pairs := append([]string{auth.OwnerHeader, owner}, kv...)
	return metadata.AppendToOutgoingContext(context.Background(), pairs...)
}

func rule(key, operator string, value any) map[string]any {
	return map[string]any{
		"type":  "rule",
		"query": map[string]any{"rule": key, "operator": operator, "value": value},
	}
}

func group(conj string, children ...any) map[string]any {
	return map[string]any{"condition": conj, "children": children}
}

func buildRequest(t *testing.T, fields map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(fields)
	require.NoError(t, err)
	return s
}

func names(t *testing.T, resp *structpb.Struct) []string {
	t.Helper()
	var out []string
	for _, v := range resp.GetFields()["rows"].GetListValue().GetValues() {
		out = append(out, v.GetStructValue().GetFields()["name"].GetStringValue())
	}
	return out
}

func TestQuery(t *testing.T) {
	client := newTestClient(t, newTestService(t, 500))

	tests := []struct {
		name      string
		owner     string
		filter    any
		wantNames []string
	}{
		{
			name:      "no filter shows only visible rows",
			owner:     "alice",
			wantNames: []string{"Acme renewal", "Acme expansion", "Globex pilot"},
		},
		{
			name:      "other owner",
			owner:     "bob",
			wantNames: []string{"Initech platform"},
		},
		{
			name:      "number comparison",
			owner:     "alice",
			filter:    group("and", rule("amount", "greater_than", 1000)),
			wantNames: []string{"Acme expansion", "Globex pilot"},
		},
		{
			name:      "or cannot widen visibility",
			owner:     "alice",
			filter:    group("or", rule("status", "equal", "lost"), rule("amount", "greater_than", 10000)),
			wantNames: nil,
		},
		{
			name:      "dotted key through relation",
			owner:     "alice",
			filter:    group("and", rule("account.name", "contains", "glob")),
			wantNames: []string{"Globex pilot"},
		},
		{
			name:      "relation count with static sub-filter",
			owner:     "alice",
			filter:    group("and", rule("bulk_product_count", "greater_than", 0)),
			wantNames: []string{"Acme expansion"},
		},
		{
			name:      "keyword override",
			owner:     "alice",
			filter:    group("and", rule("search", "contains", "upsell")),
			wantNames: []string{"Acme expansion"},
		},
		{
			name:      "multiselect",
			owner:     "alice",
			filter:    group("and", rule("tags", "in", []any{"partner", "priority"})),
			wantNames: []string{"Acme expansion", "Globex pilot"},
		},
		{
			name:      "relative date",
			owner:     "alice",
			filter:    group("and", rule("created_at", "in_past", 7)),
			wantNames: []string{"Acme renewal"},
		},
		{
			name:      "filter as JSON string",
			owner:     "alice",
			filter:    `{"condition":"and","children":[{"type":"rule","query":{"rule":"status","operator":"equal","value":"won"}}]}`,
			wantNames: []string{"Globex pilot"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := map[string]any{"resource": "deals"}
			if tt.filter != nil {
				fields["filter"] = tt.filter
			}
			resp, err := client.Query(as(tt.owner), buildRequest(t, fields))
			require.NoError(t, err)
			assert.Equal(t, tt.wantNames, names(t, resp))
			assert.Equal(t, float64(len(tt.wantNames)), resp.GetFields()["count"].GetNumberValue())
		})
	}
}

func TestQuery_LimitKeepsTotalCount(t *testing.T) {
	client := newTestClient(t, newTestService(t, 2))

	resp, err := client.Query(as("alice"), buildRequest(t, map[string]any{"resource": "deals", "limit": 1}))
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme renewal"}, names(t, resp))
	assert.Equal(t, float64(3), resp.GetFields()["count"].GetNumberValue())

	// Larger or zero limits are capped at max_rows.
	for _, limit := range []any{0, 50} {
		resp, err = client.Query(as("alice"), buildRequest(t, map[string]any{"resource": "deals", "limit": limit}))
		require.NoError(t, err)
		assert.Len(t, names(t, resp), 2)
	}
}

func TestQuery_RowValues(t *testing.T) {
	client := newTestClient(t, newTestService(t, 500))

	resp, err := client.Query(as("bob"), buildRequest(t, map[string]any{"resource": "deals"}))
	require.NoError(t, err)
	rows := resp.GetFields()["rows"].GetListValue().GetValues()
	require.Len(t, rows, 1)

	row := rows[0].GetStructValue().GetFields()
	assert.Equal(t, 12000.0, row["amount"].GetNumberValue())
	assert.Equal(t, "lost", row["status"].GetStringValue())
	assert.Equal(t, "2024-02-25", row["closed_on"].GetStringValue())
	assert.Equal(t, "2024-02-10 12:00:00", row["created_at"].GetStringValue())
	_, isNull := row["tags"].GetKind().(*structpb.Value_NullValue)
	assert.True(t, isNull)
}

func TestQuery_Errors(t *testing.T) {
	client := newTestClient(t, newTestService(t, 500))

	tests := []struct {
		name   string
		ctx    context.Context
		fields map[string]any
		want   codes.Code
	}{
		{"missing principal", context.Background(), map[string]any{"resource": "deals"}, codes.Unauthenticated},
		{"missing resource", as("alice"), map[string]any{}, codes.InvalidArgument},
		{"unknown resource", as("alice"), map[string]any{"resource": "invoices"}, codes.NotFound},
		{"unknown operand", as("alice"), map[string]any{
			"resource": "deals",
			"filter":   group("and", rule("owner_id", "equal", "bob")),
		}, codes.InvalidArgument},
		{"operator type mismatch", as("alice"), map[string]any{
			"resource": "deals",
			"filter":   group("and", rule("amount", "contains", "1")),
		}, codes.InvalidArgument},
		{"unknown condition", as("alice"), map[string]any{
			"resource": "deals",
			"filter":   group("xor", rule("amount", "equal", 1)),
		}, codes.InvalidArgument},
		{"operand outside allow-list", as("alice", auth.OperandsHeader, "name,status"), map[string]any{
			"resource": "deals",
			"filter":   group("and", rule("amount", "greater_than", 1)),
		}, codes.InvalidArgument},
		{"negative limit", as("alice"), map[string]any{"resource": "deals", "limit": -1}, codes.InvalidArgument},
		{"fractional limit", as("alice"), map[string]any{"resource": "deals", "limit": 1.5}, codes.InvalidArgument},
		{"filter of wrong kind", as("alice"), map[string]any{"resource": "deals", "filter": 3}, codes.InvalidArgument},
		{"malformed filter string", as("alice"), map[string]any{"resource": "deals", "filter": "{"}, codes.InvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Query(tt.ctx, buildRequest(t, tt.fields))
			require.Error(t, err)
			assert.Equal(t, tt.want, status.Code(err), err.Error())
		})
	}
}

func TestQuery_AllowListPermitsListedOperands(t *testing.T) {
	client := newTestClient(t, newTestService(t, 500))

	resp, err := client.Query(as("alice", auth.OperandsHeader, "status"), buildRequest(t, map[string]any{
		"resource": "deals",
		"filter":   group("and", rule("status", "equal", "won")),
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"Globex pilot"}, names(t, resp))
}

func TestPreview(t *testing.T) {
	client := newTestClient(t, newTestService(t, 500))

	resp, err := client.Preview(as("alice,carol"), buildRequest(t, map[string]any{
		"resource": "deals",
		"filter":   group("and", rule("amount", "greater_than", 1000)),
		"limit":    10,
	}))
	require.NoError(t, err)

	fields := resp.GetFields()
	assert.Equal(t,
		"SELECT t0.* FROM deals AS t0 WHERE (t0.owner_id IN (?, ?)) AND ((t0.amount > ?)) ORDER BY t0.id LIMIT 10",
		fields["sql"].GetStringValue())
	assert.Equal(t, "sqlite", fields["dialect"].GetStringValue())
	assert.Equal(t, []any{"alice", "carol", 1000.0}, fields["args"].GetListValue().AsSlice())
}

func TestPreview_NumericPrecisionByFilterForm(t *testing.T) {
	client := newTestClient(t, newTestService(t, 500))

	tests := []struct {
		name   string
		filter any
		want   string
	}{
		{
			name:   "json string keeps every digit",
			filter: `{"condition":"and","children":[{"type":"rule","query":{"rule":"price","operator":"equal","value":12345678901234567.89}}]}`,
			want:   "12345678901234567.89",
		},
		{
			name:   "string value inside an object keeps every digit",
			filter: group("and", rule("price", "equal", "12345678901234567.89")),
			want:   "12345678901234567.89",
		},
		{
			name:   "number inside an object is a double",
			filter: group("and", rule("price", "equal", 12345678901234567.89)),
			want:   "12345678901234568",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := client.Preview(as("alice"), buildRequest(t, map[string]any{
				"resource": "deals",
				"filter":   tt.filter,
			}))
			require.NoError(t, err)
			assert.Equal(t, []any{"alice", tt.want}, resp.GetFields()["args"].GetListValue().AsSlice())
		})
	}
}

func TestPreview_WithoutDatabase(t *testing.T) {
	cat, err := catalog.Default()
	require.NoError(t, err)
	svc, err := NewFilterService(nil, query.Postgres, cat, rules.NewCompiler(), config.ServerConfig{MaxRows: 100}, nil)
	require.NoError(t, err)
	client := newTestClient(t, svc)

	resp, err := client.Preview(as("alice"), buildRequest(t, map[string]any{
		"resource": "deals",
		"filter":   group("and", rule("status", "in", []any{"open", "won"})),
	}))
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT t0.* FROM deals AS t0 WHERE (t0.owner_id = ANY($1)) AND ((t0.status = ANY($2))) ORDER BY t0.id LIMIT 100",
		resp.GetFields()["sql"].GetStringValue())
	assert.Equal(t, []any{"{\"alice\"}", "{\"open\",\"won\"}"}, resp.GetFields()["args"].GetListValue().AsSlice())

	_, err = client.Query(as("alice"), buildRequest(t, map[string]any{"resource": "deals"}))
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestNewFilterService_Validation(t *testing.T) {
	cat, err := catalog.Default()
	require.NoError(t, err)
	compiler := rules.NewCompiler()
	cfg := config.ServerConfig{MaxRows: 10}

	_, err = NewFilterService(nil, nil, cat, compiler, cfg, nil)
	assert.Error(t, err)
	_, err = NewFilterService(nil, query.SQLite, nil, compiler, cfg, nil)
	assert.Error(t, err)
	_, err = NewFilterService(nil, query.SQLite, cat, nil, cfg, nil)
	assert.Error(t, err)
	_, err = NewFilterService(nil, query.SQLite, cat, compiler, config.ServerConfig{}, nil)
	assert.Error(t, err)
}
