package assembly

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	collyfetcher "github.com/JakeFAU/legisnotice/internal/fetcher/colly"
	"github.com/JakeFAU/legisnotice/internal/legislation"
)

const service = "nknalejkafmvgzmpt"

func rowsPage(rows ...string) string {
	body := fmt.Sprintf(`{"%s":[{"head":[{"list_total_count":3},{"RESULT":{"CODE":"INFO-000","MESSAGE":"정상 처리되었습니다."}}]},{"row":[`, service)
	for i, r := range rows {
		if i > 0 {
			body += ","
		}
		body += r
	}
	return body + "]}]}"
}

func row(billNo, start string) string {
	return fmt.Sprintf(`{"BILL_NO":"%s","BILL_NAME":"법안 %s","LINK_URL":"https://pal.assembly.go.kr/%s","CURR_COMMITTEE":"행정안전위원회","PROPOSER":"홍길동의원 등 10인","NOTI_ST_DT":"%s","NOTI_ED_DT":"2024-05-20"}`,
		billNo, billNo, billNo, start)
}

const noData = `{"RESULT":{"CODE":"INFO-200","MESSAGE":"해당하는 데이터가 없습니다."}}`

func newTestClient(t *testing.T, handler http.HandlerFunc, maxPages int) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(Config{BaseURL: srv.URL + "/portal/openapi/" + service, Key: "k", PageSize: 100, MaxPages: maxPages},
		collyfetcher.New(collyfetcher.Config{Timeout: 2 * time.Second}), zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestFetchNoticesPaginatesAndFilters(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		q := r.URL.Query()
		if q.Get("KEY") != "k" || q.Get("Type") != "json" || q.Get("pSize") != "100" {
			http.Error(w, "bad query", http.StatusBadRequest)
			return
		}
		switch q.Get("pIndex") {
		case "1":
			fmt.Fprint(w, rowsPage(row("B123", "2024-05-10"), row("B124", "2024-05-09")))
		case "2":
			fmt.Fprint(w, rowsPage(row("B125", "2024-05-10")))
		default:
			fmt.Fprint(w, noData)
		}
	}, 100)

	got, err := c.FetchNotices(context.Background(), "2024-05-10")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int32(3), calls.Load())

	b123 := got["B123"]
	assert.Equal(t, legislation.RawNotice{
		BillID:    "B123",
		Title:     "법안 B123",
		Committee: "행정안전위원회",
		Proposer:  "홍길동의원 등 10인",
		EndDate:   "2024-05-20",
		Content:   MissingContent,
		LinkURL:   "https://pal.assembly.go.kr/B123",
		Source:    legislation.SourceNational,
	}, b123)
	assert.Empty(t, b123.StartDate)
	assert.Contains(t, got, "B125")
}

func TestFetchNoticesStopsOnEmptyRows(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, rowsPage())
	}, 100)

	got, err := c.FetchNotices(context.Background(), "2024-05-10")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFetchNoticesPageCeiling(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, rowsPage(row("B"+r.URL.Query().Get("pIndex"), "2024-05-10")))
	}, 2)

	got, err := c.FetchNotices(context.Background(), "2024-05-10")
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchNoticesFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantAPI bool
	}{
		{
			name: "second page unreachable",
			handler: func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Query().Get("pIndex") == "1" {
					fmt.Fprint(w, rowsPage(row("B1", "2024-05-10")))
					return
				}
				http.Error(w, "boom", http.StatusInternalServerError)
			},
		},
		{
			name: "invalid key",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprint(w, `{"RESULT":{"CODE":"ERROR-290","MESSAGE":"인증키가 유효하지 않습니다."}}`)
			},
			wantAPI: true,
		},
		{
			name: "error in head",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprintf(w, `{"%s":[{"head":[{"RESULT":{"CODE":"ERROR-500","MESSAGE":"서버 오류"}}]}]}`, service)
			},
			wantAPI: true,
		},
		{
			name: "not json",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprint(w, "<html>maintenance</html>")
			},
		},
		{
			name: "missing section",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprint(w, `{"other":[]}`)
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := newTestClient(t, tc.handler, 100)
			got, err := c.FetchNotices(context.Background(), "2024-05-10")
			require.Error(t, err)
			assert.Nil(t, got)
			if tc.wantAPI {
				assert.ErrorIs(t, err, ErrAPI)
			}
		})
	}
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	f := collyfetcher.New(collyfetcher.Config{})
	_, err := New(Config{BaseURL: "https://open.assembly.go.kr/portal/openapi/" + service}, nil, nil)
	require.Error(t, err)
	_, err = New(Config{BaseURL: "not a url"}, f, nil)
	require.Error(t, err)
	_, err = New(Config{BaseURL: "https://open.assembly.go.kr/"}, f, nil)
	require.Error(t, err)

	c, err := New(Config{BaseURL: "https://open.assembly.go.kr/portal/openapi/" + service}, f, nil)
	require.NoError(t, err)
	assert.Equal(t, service, c.service)
	assert.Equal(t, 100, c.pageSize)
}
