package sync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftthlab/fibermon/pkg/logger"
	"github.com/ftthlab/fibermon/pkg/models"
)

const acsPage = `[
  {
    "_id": "ACME-AB12CD-0001",
    "_lastInform": "2026-08-30T10:15:00Z",
    "_deviceId": {
      "_Manufacturer": "Acme",
      "_ProductClass": "HG6245D",
      "_SerialNumber": "AB12CD0001"
    },
    "VirtualParameters": {
      "IPAddress": {"_value": "10.20.30.40"}
    }
  },
  {"_id": "ACME-AB12CD-0002"}
]`

func TestHTTPACSClientFetchDevices(t *testing.T) {
	var gotQuery, gotAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(acsPage))
	}))
	defer server.Close()

	client, err := NewHTTPACSClient(&models.ACSConfig{
		Endpoint: server.URL,
		Token:    "secret",
	}, logger.NewTestLogger())
	require.NoError(t, err)

	devices, err := client.FetchDevices(context.Background(), 50, 100)
	require.NoError(t, err)
	require.Len(t, devices, 2)

	assert.Contains(t, gotQuery, "limit=50")
	assert.Contains(t, gotQuery, "skip=100")
	assert.Equal(t, "Bearer secret", gotAuth)

	assert.Equal(t, "ACME-AB12CD-0001", devices[0].ID)
	assert.Equal(t, "Acme", devices[0].Manufacturer)
	assert.Equal(t, "HG6245D", devices[0].ProductClass)
	assert.Equal(t, "AB12CD0001", devices[0].SerialNumber)
	assert.Equal(t, "10.20.30.40", devices[0].IPAddress)
	require.NotNil(t, devices[0].LastInform)

	// Sparse documents decode with zero values, not errors.
	assert.Equal(t, "ACME-AB12CD-0002", devices[1].ID)
	assert.Nil(t, devices[1].LastInform)
}

func TestHTTPACSClientRejectsNon200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client, err := NewHTTPACSClient(&models.ACSConfig{Endpoint: server.URL}, logger.NewTestLogger())
	require.NoError(t, err)

	_, err = client.FetchDevices(context.Background(), 10, 0)
	require.ErrorIs(t, err, errUnexpectedStatusCode)
}

func TestHTTPACSClientRequiresEndpoint(t *testing.T) {
	_, err := NewHTTPACSClient(&models.ACSConfig{}, logger.NewTestLogger())
	require.ErrorIs(t, err, errACSEndpointRequired)
}
