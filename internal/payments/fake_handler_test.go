package payments

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakePaymentsHandlerPay(t *testing.T) {
	fin := &stubFinalizer{}
	h := NewFakePaymentsHandler(fin, nil)
	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	bookingID := uuid.New()
	resp, err := http.Post(srv.URL+"/"+bookingID.String()+"/pay", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, fin.succeeded, 1)
	assert.Equal(t, bookingID, fin.succeeded[0])
}

func TestFakePaymentsHandlerFail(t *testing.T) {
	fin := &stubFinalizer{}
	h := NewFakePaymentsHandler(fin, nil)
	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	bookingID := uuid.New()
	resp, err := http.Post(srv.URL+"/"+bookingID.String()+"/fail", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, fin.failed, 1)
	assert.Equal(t, bookingID, fin.failed[0])
}

func TestFakePaymentsHandlerRejectsBadID(t *testing.T) {
	h := NewFakePaymentsHandler(&stubFinalizer{}, nil)
	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/not-a-uuid/pay", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
