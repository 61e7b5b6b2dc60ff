package handler

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

func TestActorFromContext(t *testing.T) {
	t.Parallel()

	actor, err := actorFromContext(actorContext(actorIDKey, " mgr-1 ", actorAdminKey, "1", actorReportsKey, "tm-1, tm-2", actorReportsKey, "tm-3"))
	require.NoError(t, err)
	require.Equal(t, "mgr-1", actor.ID)
	require.True(t, actor.Admin)
	require.Equal(t, []string{"tm-1", "tm-2", "tm-3"}, actor.Reports)

	_, err = actorFromContext(context.Background())
	require.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestRequestContextFrom(t *testing.T) {
	t.Parallel()

	ctx := actorContext(requestIDKey, "req-1", userAgentKey, "grpc-go/1.76")
	ctx = peer.NewContext(ctx, &peer.Peer{Addr: &net.TCPAddr{IP: net.ParseIP("10.0.0.8"), Port: 51000}})

	rc := requestContextFrom(ctx, "tm-1")
	require.Equal(t, "tm-1", rc.ActorID)
	require.Equal(t, "req-1", rc.RequestID)
	require.Equal(t, "grpc-go/1.76", rc.UserAgent)
	require.Equal(t, "10.0.0.8", rc.ClientIP)
}

func TestFieldConversions(t *testing.T) {
	t.Parallel()

	in := fields{
		"flag_str":  "0",
		"flag_num":  float64(1),
		"flag_bad":  "yes please",
		"int_str":   " 70 ",
		"int_frac":  12.5,
		"date":      "2024-02-29",
		"bad_date":  "2024-02-30",
		"not_a_map": "x",
	}
	invalid := func(err error) {
		t.Helper()
		require.Equal(t, codes.InvalidArgument, status.Code(err), "%v", err)
	}

	b, err := in.optionalBool("flag_str")
	require.NoError(t, err)
	require.False(t, *b)
	b, err = in.optionalBool("flag_num")
	require.NoError(t, err)
	require.True(t, *b)
	_, err = in.optionalBool("flag_bad")
	invalid(err)
	b, err = in.optionalBool("missing")
	require.NoError(t, err)
	require.Nil(t, b)

	n, err := in.optionalInt("int_str")
	require.NoError(t, err)
	require.Equal(t, 70, *n)
	_, err = in.optionalInt("int_frac")
	invalid(err)

	d, err := in.optionalDate("date")
	require.NoError(t, err)
	require.Equal(t, 29, d.Day())
	_, err = in.optionalDate("bad_date")
	invalid(err)
	d, err = in.optionalDate("missing")
	require.NoError(t, err)
	require.True(t, d.IsZero())

	_, err = in.object("not_a_map")
	invalid(err)
	_, err = in.requiredString("missing")
	invalid(err)
}
