package libvirt

import (
	"context"
	"errors"
	"sync"
	"testing"

	golibvirt "github.com/digitalocean/go-libvirt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dialRecorder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (r *dialRecorder) dial(_ context.Context, d Descriptor) (*Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return &Client{readOnly: d.ReadOnly, uri: d.URI}, nil
}

func (r *dialRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func newTestConnector(rec *dialRecorder, probeErr error) *Connector {
	c := NewConnector(Descriptor{URI: "test:///default", ReadOnly: true})
	c.dial = rec.dial
	c.probe = func(*Client) (ServerInfo, error) {
		if probeErr != nil {
			return ServerInfo{}, probeErr
		}
		return ServerInfo{Version: "10.0.0", Hostname: "hv1", URI: "test:///default"}, nil
	}
	return c
}

func TestConnector_OpenBeforeStart(t *testing.T) {
	rec := &dialRecorder{}
	c := newTestConnector(rec, nil)

	_, err := c.Open(context.Background())
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.Zero(t, rec.count())
}

func TestConnector_StartOnce(t *testing.T) {
	rec := &dialRecorder{}
	c := newTestConnector(rec, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, c.Start(ctx))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, rec.count(), "probe should dial exactly once")
	assert.Equal(t, "hv1", c.Info().Hostname)
}

func TestConnector_OpenIsFreshEachTime(t *testing.T) {
	rec := &dialRecorder{}
	c := newTestConnector(rec, nil)
	ctx := context.Background()
	require.NoError(t, c.Start(ctx))

	a, err := c.Open(ctx)
	require.NoError(t, err)
	b, err := c.Open(ctx)
	require.NoError(t, err)

	assert.NotSame(t, a, b)
	assert.True(t, a.ReadOnly())
	assert.Equal(t, 3, rec.count())
}

func TestConnector_StartFailureIsSticky(t *testing.T) {
	rec := &dialRecorder{}
	probeErr := errors.New("boom")
	c := newTestConnector(rec, probeErr)
	ctx := context.Background()

	err := c.Start(ctx)
	require.ErrorIs(t, err, probeErr)
	assert.ErrorIs(t, c.Start(ctx), probeErr)

	_, err = c.Open(ctx)
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.ErrorIs(t, err, probeErr)
	assert.Equal(t, 1, rec.count())
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		notFound     bool
		invalidCfg   bool
		readOnly     bool
		opInvalid    bool
		wantCodeSeen bool
	}{
		{"no domain", golibvirt.Error{Code: uint32(golibvirt.ErrNoDomain)}, true, false, false, false, true},
		{"no pool", golibvirt.Error{Code: uint32(golibvirt.ErrNoStoragePool)}, true, false, false, false, true},
		{"no volume wrapped", fmtWrap(golibvirt.Error{Code: uint32(golibvirt.ErrNoStorageVol)}), true, false, false, false, true},
		{"xml error", golibvirt.Error{Code: uint32(golibvirt.ErrXMLError)}, false, true, false, false, true},
		{"denied", golibvirt.Error{Code: uint32(golibvirt.ErrOperationDenied)}, false, false, true, false, true},
		{"invalid op", &golibvirt.Error{Code: uint32(golibvirt.ErrOperationInvalid)}, false, false, false, true, true},
		{"plain", errors.New("plain"), false, false, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := ErrorCode(tt.err)
			assert.Equal(t, tt.wantCodeSeen, ok)
			assert.Equal(t, tt.notFound, IsNotFound(tt.err))
			assert.Equal(t, tt.invalidCfg, IsInvalidConfig(tt.err))
			assert.Equal(t, tt.readOnly, IsReadOnly(tt.err))
			assert.Equal(t, tt.opInvalid, IsOperationInvalid(tt.err))
		})
	}
}

func fmtWrap(err error) error {
	return errors.Join(errors.New("lookup failed"), err)
}
