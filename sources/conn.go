package sources

import (
	"io/ioutil"
	"net/http"
	"time"

	"github.com/antonholmquist/jason"
	"github.com/pkg/errors"
)

// conn performs requests against an upstream repository.
type conn struct {
	client *http.Client
}

// get returns the body of the given url and the final url after any
// redirects.
func (c *conn) get(u string, accept string) ([]byte, string, error) {
	req, err := http.NewRequest("GET", u, nil)
	if err != nil {
		return nil, "", err
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	req.Header.Set("User-Agent", "bagcreate")
	resp, err := c.do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case 200:
		break
	case 404, 410:
		return nil, "", ErrNotFound
	case 401, 403:
		return nil, "", ErrNotAuthorized
	default:
		return nil, "", errors.Errorf("Metadata request gave HTTP %d", resp.StatusCode)
	}
	body, err := ioutil.ReadAll(resp.Body)
	return body, resp.Request.URL.String(), err
}

// getJason returns the JSON object at the given url.
func (c *conn) getJason(u string) (*jason.Object, []byte, string, error) {
	body, final, err := c.get(u, "application/json")
	if err != nil {
		return nil, nil, "", err
	}
	v, err := jason.NewObjectFromBytes(body)
	if err != nil {
		return nil, nil, "", errors.Wrap(ErrBadRecord, err.Error())
	}
	return v, body, final, nil
}

// do performs an http request using our client with a timeout. The
// timeout is arbitrary, and is just there so we don't hang indefinitely
// should the server never close the connection.
func (c *conn) do(req *http.Request) (*http.Response, error) {
	if c.client == nil {
		c.client = &http.Client{
			Timeout: 5 * time.Minute, // arbitrary
		}
	}
	return c.client.Do(req)
}
