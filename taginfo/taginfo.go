// Package taginfo queries key co-occurrence statistics from a taginfo
// instance.
package taginfo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"

	"github.com/streetferret/crudo"
	"github.com/streetferret/crudo/log"
)

const DefaultBaseURL = "https://taginfo.openstreetmap.org/api/4"

// Failure kinds, used as log fields and metric labels.
const (
	KindRequest = "request"
	KindStatus  = "status"
	KindDecode  = "decode"
)

var ErrUnexpectedStatus = errors.New("unexpected response status")

// FetchError reports why the combinations of a key could not be fetched.
type FetchError struct {
	Key  string
	Kind string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching combinations for %s (%s): %v", e.Key, e.Kind, e.Err)
}

func (e *FetchError) Cause() error { return e.Err }

func (e *FetchError) Unwrap() error { return e.Err }

// KindOf returns the failure kind of err, or "unknown".
func KindOf(err error) string {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return "unknown"
}

type Config struct {
	BaseURL string
	// Results is the number of combinations requested per key.
	Results   int
	Timeout   time.Duration
	UserAgent string
	// MaxRetries is the number of additional attempts after a failed
	// request. Decode errors and 4xx responses are not retried.
	MaxRetries    int
	RetryInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Results <= 0 {
		c.Results = 10
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "crudo/" + crudo.Version
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = 500 * time.Millisecond
	}
	return c
}

type Client struct {
	conf   Config
	client *http.Client
}

func NewClient(conf Config) *Client {
	conf = conf.withDefaults()
	client := &http.Client{
		Timeout: conf.Timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConnsPerHost:   8,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
	return &Client{conf: conf, client: client}
}

// CombinationsURL returns the request URL for the most frequent keys
// used together with key.
func (c *Client) CombinationsURL(key string) string {
	return c.conf.BaseURL + "/key/combinations?key=" + url.QueryEscape(key) +
		"&filter=all&sortname=to_count&sortorder=desc&page=1&rp=" + strconv.Itoa(c.conf.Results) +
		"&qtype=other_key"
}

type combinationsResponse struct {
	Data *[]struct {
		OtherKey interface{} `json:"other_key"`
	} `json:"data"`
}

// TopCombinations returns the other_key values of the most frequent
// combinations for key, in response order.
func (c *Client) TopCombinations(ctx context.Context, key string) ([]string, error) {
	var keys []string
	attempt := 0
	op := func() error {
		attempt += 1
		var err error
		keys, err = c.fetch(ctx, key)
		if err == nil {
			return nil
		}
		if fe, ok := err.(*FetchError); ok && !retryable(fe) {
			return backoff.Permanent(err)
		}
		if attempt <= c.conf.MaxRetries {
			log.Debugf("retrying %s after attempt %d: %v", key, attempt, err)
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.conf.RetryInterval
	b.MaxElapsedTime = 0
	err := backoff.Retry(op, backoff.WithContext(
		backoff.WithMaxRetries(b, uint64(c.conf.MaxRetries)), ctx))
	if err != nil {
		if _, ok := err.(*FetchError); !ok {
			err = &FetchError{Key: key, Kind: KindRequest, Err: err}
		}
		return nil, err
	}
	return keys, nil
}

func retryable(err *FetchError) bool {
	switch err.Kind {
	case KindDecode:
		return false
	case KindStatus:
		var se *statusError
		if errors.As(err.Err, &se) {
			return se.code >= 500 || se.code == http.StatusTooManyRequests
		}
	}
	return true
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s: %d %s", ErrUnexpectedStatus, e.code, http.StatusText(e.code))
}

func (e *statusError) Is(target error) bool { return target == ErrUnexpectedStatus }

func (c *Client) fetch(ctx context.Context, key string) ([]string, error) {
	req, err := http.NewRequest("GET", c.CombinationsURL(key), nil)
	if err != nil {
		return nil, &FetchError{Key: key, Kind: KindRequest, Err: err}
	}
	req = req.WithContext(ctx)
	req.Header.Set("User-Agent", c.conf.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &FetchError{Key: key, Kind: KindRequest, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// drain for connection reuse
		io.Copy(ioutil.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &FetchError{Key: key, Kind: KindStatus, Err: &statusError{resp.StatusCode}}
	}

	keys, err := decodeCombinations(resp.Body)
	if err != nil {
		return nil, &FetchError{Key: key, Kind: KindDecode, Err: err}
	}
	return keys, nil
}

func decodeCombinations(r io.Reader) ([]string, error) {
	resp := combinationsResponse{}
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		return nil, errors.Wrap(err, "decoding response")
	}
	if resp.Data == nil {
		return nil, errors.New("response without data array")
	}
	keys := make([]string, 0, len(*resp.Data))
	for i, entry := range *resp.Data {
		switch v := entry.OtherKey.(type) {
		case nil:
			return nil, errors.Errorf("entry %d without other_key", i)
		case string:
			keys = append(keys, v)
		default:
			keys = append(keys, fmt.Sprint(v))
		}
	}
	return keys, nil
}
