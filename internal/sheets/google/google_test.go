package google

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"autorkm/internal/core"
)

type seenRequest struct {
	path  string
	query url.Values
}

func fakeSheets(t *testing.T, status int, body string) (*gsheet.Service, *seenRequest) {
	t.Helper()
	seen := &seenRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.path, seen.query = r.URL.Path, r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()),
		goption.WithoutAuthentication())
	require.NoError(t, err)
	return svc, seen
}

func TestReadDataset(t *testing.T) {
	svc, req := fakeSheets(t, http.StatusOK, `{
		"range": "'Data RKM'!A1:F4",
		"majorDimension": "ROWS",
		"values": [
			["Instansi", "Topik", "Channel", "Status", "Kategori", "Tanggal"],
			["Dinas A", "Jalan", "Web", "Selesai", "Keluhan", 45414],
			[],
			["Dinas B", "Air", "Phone", "Selesai", "Keluhan", 45414.75]
		]
	}`)

	c := NewWithService(svc, "sheet-id", "")
	assert.Equal(t, DefaultSheetName, c.SheetName())

	ds, err := c.ReadDataset(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, ds.Len())
	assert.True(t, ds.HasColumn(core.ColCategory))
	assert.Equal(t, "Dinas B", ds.Records[1].Agency)
	assert.Equal(t, "2024-05-02", ds.Records[1].Value(core.ColDate))

	assert.Contains(t, req.path, "/spreadsheets/sheet-id/values/")
	assert.Equal(t, "UNFORMATTED_VALUE", req.query.Get("valueRenderOption"))
	assert.Equal(t, "SERIAL_NUMBER", req.query.Get("dateTimeRenderOption"))
}

func TestReadDatasetAPIError(t *testing.T) {
	svc, _ := fakeSheets(t, http.StatusNotFound, `{"error": {"code": 404, "message": "not found"}}`)

	_, err := NewWithService(svc, "sheet-id", "RKM").ReadDataset(context.Background())
	var ue *core.UnexpectedError
	require.ErrorAs(t, err, &ue)
	assert.Contains(t, ue.Op, "'RKM'")
}

func TestReadDatasetNilService(t *testing.T) {
	_, err := (&Client{}).ReadDataset(context.Background())
	assert.Error(t, err)
}

func TestNewValidation(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	_, err := New(context.Background(), Options{})
	require.Error(t, err)
	assert.Equal(t, "missing GOOGLE_SPREADSHEET_ID", err.Error())

	_, err = New(context.Background(), Options{SpreadsheetID: "id"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "missing service account credentials"))

	_, err = New(context.Background(), Options{SpreadsheetID: "id", CredentialsFile: "/nonexistent/sa.json"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read service account file")
}

func TestCellString(t *testing.T) {
	assert.Equal(t, "", cellString(nil))
	assert.Equal(t, "45414", cellString(45414.0))
	assert.Equal(t, "0.5", cellString(0.5))
	assert.Equal(t, "true", cellString(true))
	assert.Equal(t, "Dinas", cellString("Dinas"))
	assert.Equal(t, "'It''s'", quoteSheet("It's"))
}
