package taginfo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCombinationsURL(t *testing.T) {
	c := NewClient(Config{})
	assert.Equal(t,
		"https://taginfo.openstreetmap.org/api/4/key/combinations?key=building&filter=all&sortname=to_count&sortorder=desc&page=1&rp=10&qtype=other_key",
		c.CombinationsURL("building"))

	c = NewClient(Config{BaseURL: "http://localhost:4000/api/4/", Results: 25})
	assert.Equal(t,
		"http://localhost:4000/api/4/key/combinations?key=man_made&filter=all&sortname=to_count&sortorder=desc&page=1&rp=25&qtype=other_key",
		c.CombinationsURL("man_made"))
	assert.Contains(t, c.CombinationsURL("a b&c"), "key=a+b%26c&")
}

func testClient(srv *httptest.Server, retries int) *Client {
	return NewClient(Config{
		BaseURL:       srv.URL,
		MaxRetries:    retries,
		RetryInterval: time.Millisecond,
		UserAgent:     "crudo-test",
	})
}

func TestTopCombinations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/key/combinations", r.URL.Path)
		assert.Equal(t, "highway", r.URL.Query().Get("key"))
		assert.Equal(t, "other_key", r.URL.Query().Get("qtype"))
		assert.Equal(t, "crudo-test", r.Header.Get("User-Agent"))
		w.Write([]byte(`{"page":1,"rp":10,"total":3,"data":[
			{"other_key":"name","together_count":100},
			{"other_key":"surface","together_count":50},
			{"other_key":"lanes","together_count":10}]}`))
	}))
	defer srv.Close()

	keys, err := testClient(srv, 0).TopCombinations(context.Background(), "highway")
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "surface", "lanes"}, keys)
}

func TestTopCombinationsDecodeErrors(t *testing.T) {
	for _, body := range []string{
		`not json`,
		`{}`,
		`{"data": null}`,
		`{"data": "foo"}`,
		`{"data": [{"count": 1}]}`,
	} {
		var requests int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&requests, 1)
			w.Write([]byte(body))
		}))

		_, err := testClient(srv, 3).TopCombinations(context.Background(), "leisure")
		srv.Close()
		require.Error(t, err, body)
		assert.Equal(t, KindDecode, KindOf(err), body)
		assert.EqualValues(t, 1, atomic.LoadInt32(&requests), "decode errors are not retried")
	}
}

func TestTopCombinationsNonStringKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"other_key":42},{"other_key":"name"}]}`))
	}))
	defer srv.Close()

	keys, err := testClient(srv, 0).TopCombinations(context.Background(), "route")
	require.NoError(t, err)
	assert.Equal(t, []string{"42", "name"}, keys)
}

func TestTopCombinationsRetry(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"data":[{"other_key":"name"}]}`))
	}))
	defer srv.Close()

	keys, err := testClient(srv, 2).TopCombinations(context.Background(), "shop")
	require.NoError(t, err)
	assert.Equal(t, []string{"name"}, keys)
	assert.EqualValues(t, 3, atomic.LoadInt32(&requests))
}

func TestTopCombinationsRetriesExhausted(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := testClient(srv, 2).TopCombinations(context.Background(), "shop")
	require.Error(t, err)
	assert.Equal(t, KindStatus, KindOf(err))
	assert.True(t, errors.Is(err, ErrUnexpectedStatus))
	assert.EqualValues(t, 3, atomic.LoadInt32(&requests))
}

func TestTopCombinationsClientErrorNotRetried(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := testClient(srv, 5).TopCombinations(context.Background(), "shop")
	require.Error(t, err)
	assert.Equal(t, KindStatus, KindOf(err))
	assert.True(t, strings.Contains(err.Error(), "404"), err.Error())
	assert.EqualValues(t, 1, atomic.LoadInt32(&requests))
}

func TestTopCombinationsRequestError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(Config{BaseURL: url, RetryInterval: time.Millisecond})
	_, err := c.TopCombinations(context.Background(), "power")
	require.Error(t, err)
	assert.Equal(t, KindRequest, KindOf(err))
}

func TestTopCombinationsCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := testClient(srv, 10).TopCombinations(ctx, "power")
	require.Error(t, err)
	assert.Equal(t, KindRequest, KindOf(err))
}

func TestKindOfUnknown(t *testing.T) {
	assert.Equal(t, "unknown", KindOf(errors.New("boom")))
}
