package management_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/edenfs-go/edenfs/management"
	"github.com/stretchr/testify/require"
)

type fakeHandler struct {
	status       management.Status
	shutdownHit  bool
	lastOption   string
	lastValue    string
	setOptionErr error
}

func (f *fakeHandler) Status() management.Status { return f.status }
func (f *fakeHandler) Shutdown(ctx context.Context) error {
	f.shutdownHit = true
	return nil
}
func (f *fakeHandler) SetOption(name, value string) error {
	f.lastOption = name
	f.lastValue = value
	return f.setOptionErr
}

func waitForServerAddr(t *testing.T, srv *management.Server) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if addr := srv.Addr(); addr != nil {
			return addr.String()
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("server never bound a listener")
	return ""
}

func TestStatusEndpointReportsHandlerStatus(t *testing.T) {
	h := &fakeHandler{status: management.Status{MountPoint: "/mnt", StoreDir: "/store", JournalSeq: 42}}
	srv := management.NewServer(h)

	done := make(chan error, 1)
	go func() { done <- srv.Serve("127.0.0.1:0") }()
	t.Cleanup(func() { srv.Close(context.Background()) })

	addr := waitForServerAddr(t, srv)

	resp, err := http.Get(fmt.Sprintf("http://%s/status", addr))
	require.NoError(t, err)
	defer resp.Body.Close()

	var got management.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Equal(t, "/mnt", got.MountPoint)
	require.Equal(t, "/store", got.StoreDir)
	require.Equal(t, uint64(42), got.JournalSeq)
}

func TestShutdownRequiresPostAndInvokesHandler(t *testing.T) {
	h := &fakeHandler{}
	srv := management.NewServer(h)

	done := make(chan error, 1)
	go func() { done <- srv.Serve("127.0.0.1:0") }()
	t.Cleanup(func() { srv.Close(context.Background()) })

	addr := waitForServerAddr(t, srv)

	resp, err := http.Get(fmt.Sprintf("http://%s/shutdown", addr))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	require.False(t, h.shutdownHit)

	resp, err = http.Post(fmt.Sprintf("http://%s/shutdown", addr), "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.True(t, h.shutdownHit)
}

func TestSetOptionAppliesValidOptionAndRejectsInvalid(t *testing.T) {
	h := &fakeHandler{}
	srv := management.NewServer(h)

	done := make(chan error, 1)
	go func() { done <- srv.Serve("127.0.0.1:0") }()
	t.Cleanup(func() { srv.Close(context.Background()) })

	addr := waitForServerAddr(t, srv)

	body := bytes.NewBufferString(`{"name":"honor_stop","value":"false"}`)
	resp, err := http.Post(fmt.Sprintf("http://%s/options", addr), "application/json", body)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, "honor_stop", h.lastOption)
	require.Equal(t, "false", h.lastValue)

	h.setOptionErr = fmt.Errorf("unrecognized value")
	body = bytes.NewBufferString(`{"name":"status","value":"bogus"}`)
	resp, err = http.Post(fmt.Sprintf("http://%s/options", addr), "application/json", body)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(fmt.Sprintf("http://%s/options", addr))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServeAndCloseRoundTrip(t *testing.T) {
	h := &fakeHandler{}
	srv := management.NewServer(h)

	done := make(chan error, 1)
	go func() { done <- srv.Serve("127.0.0.1:0") }()
	waitForServerAddr(t, srv)

	require.NoError(t, srv.Close(context.Background()))
	require.NoError(t, <-done)
}
