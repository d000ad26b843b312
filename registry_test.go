package banyantask

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type emptyName struct{}

func (emptyName) TaskName() string                              { return "" }
func (emptyName) Run(context.Context, CurrentTask, *deps) error { return nil }

func TestRegistry_RegisterAndDecode(t *testing.T) {
	reg := NewRegistry[*deps]()
	Register[pinTask](reg)
	Register[storageReport](reg)

	require.Equal(t, []string{"pin_cid", "storage_report"}, reg.Names())
	require.True(t, reg.Has("pin_cid"))
	require.False(t, reg.Has("missing"))

	task, err := reg.Decode(&Record{TaskName: "pin_cid", Payload: []byte(`{"cid":"bafy"}`)})
	require.NoError(t, err)
	require.Equal(t, &pinTask{CID: "bafy"}, task)

	task, err = reg.Decode(&Record{TaskName: "storage_report"})
	require.NoError(t, err)
	require.Equal(t, &storageReport{}, task)
}

func TestRegistry_DecodeErrors(t *testing.T) {
	reg := NewRegistry[*deps]()
	Register[pinTask](reg)

	_, err := reg.Decode(&Record{TaskName: "missing"})
	require.ErrorIs(t, err, ErrNoHandler)

	_, err = reg.Decode(&Record{TaskName: "pin_cid", Payload: []byte(`{"cid":`)})
	require.ErrorIs(t, err, ErrDeserializationFailed)

	reg.SetEncoder(badEncoder{})
	_, err = reg.Decode(&Record{TaskName: "pin_cid", Payload: []byte(`{}`)})
	require.ErrorIs(t, err, ErrDeserializationFailed)
}

func TestRegistry_EmptyNamePanics(t *testing.T) {
	reg := NewRegistry[*deps]()
	require.Panics(t, func() { Register[emptyName](reg) })
}

func TestRegistry_MiddlewareOrder(t *testing.T) {
	reg := NewRegistry[*deps]()
	var order []string
	mw := func(tag string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, cur CurrentTask) error {
				order = append(order, tag+"-in")
				err := next(ctx, cur)
				order = append(order, tag+"-out")
				return err
			}
		}
	}
	reg.Use(mw("a"))
	reg.Use(mw("b"))

	h := reg.wrapHandler(func(context.Context, CurrentTask) error {
		order = append(order, "run")
		return nil
	})
	require.NoError(t, h(context.Background(), CurrentTask{}))
	require.Equal(t, []string{"a-in", "b-in", "run", "b-out", "a-out"}, order)
}

func TestJSONEncoder_EmptyPayload(t *testing.T) {
	var p pinTask
	require.NoError(t, defaultEncoder.Decode(nil, &p))
	require.Equal(t, pinTask{}, p)

	b, err := defaultEncoder.Encode(pinTask{CID: "x"})
	require.NoError(t, err)
	require.NoError(t, defaultEncoder.Decode(b, &p))
	require.Equal(t, "x", p.CID)
}
