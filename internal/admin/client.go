package admin

import (
	"context"
	"strings"
	"time"

	"connectrpc.com/connect"
	"connectrpc.com/grpchealth"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Entry is one cache slot as reported by ListEntries.
type Entry struct {
	Slot      string
	Size      int
	StoredAt  time.Time
	ExpiresAt time.Time
	Valid     bool
}

// Listing is the decoded ListEntries response.
type Listing struct {
	TTL     time.Duration
	Hits    uint64
	Misses  uint64
	Entries []Entry
}

// Client calls the admin service and the daemon's health endpoint.
type Client struct {
	list   *connect.Client[emptypb.Empty, structpb.Struct]
	clear  *connect.Client[emptypb.Empty, structpb.Struct]
	health *connect.Client[structpb.Struct, structpb.Struct]
}

func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	return &Client{
		list:  connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+ListEntriesProcedure, opts...),
		clear: connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+ClearCacheProcedure, opts...),
		// The health messages are small enough to speak as JSON objects.
		health: connect.NewClient[structpb.Struct, structpb.Struct](
			httpClient,
			baseURL+"/"+grpchealth.HealthV1ServiceName+"/Check",
			append(opts, connect.WithProtoJSON())...,
		),
	}
}

func parseTime(v *structpb.Value) time.Time {
	t, err := time.Parse(time.RFC3339Nano, v.GetStringValue())
	if err != nil {
		return time.Time{}
	}
	return t
}

func (c *Client) ListEntries(ctx context.Context) (Listing, error) {
	res, err := c.list.CallUnary(ctx, connect.NewRequest(&emptypb.Empty{}))
	if err != nil {
		return Listing{}, err
	}

	f := res.Msg.GetFields()
	out := Listing{
		TTL:    time.Duration(f["ttlMs"].GetNumberValue()) * time.Millisecond,
		Hits:   uint64(f["hits"].GetNumberValue()),
		Misses: uint64(f["misses"].GetNumberValue()),
	}
	for _, v := range f["entries"].GetListValue().GetValues() {
		e := v.GetStructValue().GetFields()
		out.Entries = append(out.Entries, Entry{
			Slot:      e["slot"].GetStringValue(),
			Size:      int(e["size"].GetNumberValue()),
			StoredAt:  parseTime(e["storedAt"]),
			ExpiresAt: parseTime(e["expiresAt"]),
			Valid:     e["valid"].GetBoolValue(),
		})
	}

	return out, nil
}

// ClearCache resets every slot and returns how many were valid.
func (c *Client) ClearCache(ctx context.Context) (int, error) {
	res, err := c.clear.CallUnary(ctx, connect.NewRequest(&emptypb.Empty{}))
	if err != nil {
		return 0, err
	}
	return int(res.Msg.GetFields()["cleared"].GetNumberValue()), nil
}

// Health returns the serving status name for service, such as "SERVING" or
// "NOT_SERVING"; "" asks about the whole server.
func (c *Client) Health(ctx context.Context, service string) (string, error) {
	req := &structpb.Struct{Fields: map[string]*structpb.Value{}}
	if service != "" {
		req.Fields["service"] = structpb.NewStringValue(service)
	}

	res, err := c.health.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return "", err
	}
	return statusName(res.Msg.GetFields()["status"].GetStringValue()), nil
}

// statusName strips the enum prefix grpchealth puts on JSON status names.
// The zero status is omitted from JSON, so an absent field is UNKNOWN.
func statusName(raw string) string {
	name := strings.TrimPrefix(raw, "SERVING_STATUS_")
	if name == "" {
		return "UNKNOWN"
	}
	return name
}
