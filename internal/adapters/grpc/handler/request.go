package handler

import (
	"context"
	"fmt"
	"math"
	"net"
	"strconv"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ogurasousui/checkin-ledger/internal/core/snapshot"
	"github.com/ogurasousui/checkin-ledger/internal/core/tenure"
	"github.com/ogurasousui/checkin-ledger/internal/platform/authz"
)

// 上流の認証基盤が付与するメタデータキーです。
const (
	actorIDKey      = "x-actor-id"
	actorAdminKey   = "x-actor-admin"
	actorReportsKey = "x-actor-reports"
	requestIDKey    = "x-request-id"
	userAgentKey    = "user-agent"
)

func invalidArgument(format string, args ...any) error {
	return status.Errorf(codes.InvalidArgument, format, args...)
}

func actorFromContext(ctx context.Context) (authz.Actor, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	id := strings.TrimSpace(firstValue(md, actorIDKey))
	if id == "" {
		return authz.Actor{}, status.Error(codes.Unauthenticated, "actor is required")
	}

	admin, _ := strconv.ParseBool(strings.TrimSpace(firstValue(md, actorAdminKey)))

	var reports []string
	for _, raw := range md.Get(actorReportsKey) {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				reports = append(reports, part)
			}
		}
	}

	return authz.Actor{ID: id, Admin: admin, Reports: reports}, nil
}

func requestContextFrom(ctx context.Context, actorID string) snapshot.RequestContext {
	md, _ := metadata.FromIncomingContext(ctx)
	rc := snapshot.RequestContext{
		ActorID:   actorID,
		RequestID: strings.TrimSpace(firstValue(md, requestIDKey)),
		UserAgent: firstValue(md, userAgentKey),
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		addr := p.Addr.String()
		if host, _, err := net.SplitHostPort(addr); err == nil {
			addr = host
		}
		rc.ClientIP = addr
	}
	return rc
}

func firstValue(md metadata.MD, key string) string {
	if md == nil {
		return ""
	}
	if values := md.Get(key); len(values) > 0 {
		return values[0]
	}
	return ""
}

// fields は Struct の値を型付きで取り出すための薄いラッパーです。
type fields map[string]any

func fieldsOf(req *structpb.Struct) (fields, error) {
	if req == nil {
		return nil, invalidArgument("request is required")
	}
	return fields(req.AsMap()), nil
}

func (f fields) str(key string) string {
	switch v := f[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func (f fields) requiredString(key string) (string, error) {
	v := f.str(key)
	if v == "" {
		return "", invalidArgument("%s is required", key)
	}
	return v, nil
}

func (f fields) optionalString(key string) (*string, error) {
	raw, ok := f[key]
	if !ok || raw == nil {
		return nil, nil
	}
	v, ok := raw.(string)
	if !ok {
		return nil, invalidArgument("%s must be a string", key)
	}
	return &v, nil
}

func (f fields) optionalInt(key string) (*int, error) {
	raw, ok := f[key]
	if !ok || raw == nil {
		return nil, nil
	}
	n, err := toInt(raw)
	if err != nil {
		return nil, invalidArgument("%s: %v", key, err)
	}
	return &n, nil
}

func (f fields) optionalBool(key string) (*bool, error) {
	raw, ok := f[key]
	if !ok || raw == nil {
		return nil, nil
	}
	b, err := toBool(raw)
	if err != nil {
		return nil, invalidArgument("%s: %v", key, err)
	}
	return &b, nil
}

func (f fields) optionalDate(key string) (time.Time, error) {
	raw := f.str(key)
	if raw == "" {
		return time.Time{}, nil
	}
	d, err := tenure.ParseDate(raw)
	if err != nil {
		return time.Time{}, invalidArgument("%s must be YYYY-MM-DD", key)
	}
	return d, nil
}

func (f fields) object(key string) (fields, error) {
	raw, ok := f[key]
	if !ok || raw == nil {
		return nil, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, invalidArgument("%s must be an object", key)
	}
	return fields(m), nil
}

func toInt(raw any) (int, error) {
	switch v := raw.(type) {
	case float64:
		if v != math.Trunc(v) || v > math.MaxInt32 || v < math.MinInt32 {
			return 0, fmt.Errorf("not an integer")
		}
		return int(v), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("not an integer")
		}
		return n, nil
	default:
		return 0, fmt.Errorf("not an integer")
	}
}

// toBool はフォーム由来の "0"/"1" も真偽値として受け付けます。
func toBool(raw any) (bool, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case float64:
		return v != 0, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, fmt.Errorf("not a boolean")
		}
		return b, nil
	default:
		return false, fmt.Errorf("not a boolean")
	}
}
