// Package ipfs is a thin client for the content-addressed storage
// daemon's HTTP API. The daemon is treated as a black box; every call
// carries its own deadline and failures map onto a small typed error set.
package ipfs

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spknetwork/storage-coordinator/config/params"
)

// Typed failures surfaced to callers.
var (
	ErrTimeout     = errors.New("daemon request timed out")
	ErrNotFound    = errors.New("object not found in daemon")
	ErrUnavailable = errors.New("daemon unavailable")
)

// transientErr marks ErrTimeout and ErrUnavailable as retryable.
type transientErr struct{ error }

func (transientErr) Temporary() bool { return true }

func (e transientErr) Unwrap() error { return e.error }

// RepoStat summarizes the daemon repository and bandwidth counters.
type RepoStat struct {
	RepoSize     int64   `json:"repoSize"`
	NumObjects   int64   `json:"numObjects"`
	BandwidthIn  float64 `json:"bandwidthIn"`
	BandwidthOut float64 `json:"bandwidthOut"`
}

// Client talks to one daemon API endpoint.
type Client struct {
	apiURL string
	http   *http.Client
}

// NewClient builds a client for the daemon API at apiURL, e.g.
// "http://127.0.0.1:5001".
func NewClient(apiURL string) *Client {
	return &Client{
		apiURL: strings.TrimRight(apiURL, "/"),
		http:   &http.Client{},
	}
}

func (c *Client) post(ctx context.Context, path string, args url.Values, body io.Reader, contentType string) ([]byte, error) {
	u := c.apiURL + path
	if len(args) > 0 {
		u += "?" + args.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, body)
	if err != nil {
		return nil, errors.Wrap(err, "could not build daemon request")
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, transientErr{errors.Wrapf(ErrTimeout, "%s", path)}
		}
		return nil, transientErr{errors.Wrapf(ErrUnavailable, "%s: %v", path, err)}
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, transientErr{errors.Wrapf(ErrTimeout, "%s", path)}
		}
		return nil, transientErr{errors.Wrapf(ErrUnavailable, "%s: %v", path, err)}
	}
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(data))
		if strings.Contains(msg, "not found") || resp.StatusCode == http.StatusNotFound {
			return nil, errors.Wrapf(ErrNotFound, "%s: %s", path, msg)
		}
		return nil, transientErr{errors.Wrapf(ErrUnavailable, "%s: status %d: %s", path, resp.StatusCode, msg)}
	}
	return data, nil
}

// Add stores bytes in the daemon and returns the resulting cid.
func (c *Client) Add(ctx context.Context, data []byte) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "upload")
	if err != nil {
		return "", errors.Wrap(err, "could not build multipart body")
	}
	if _, err := part.Write(data); err != nil {
		return "", errors.Wrap(err, "could not write multipart body")
	}
	if err := mw.Close(); err != nil {
		return "", errors.Wrap(err, "could not finish multipart body")
	}
	out, err := c.post(ctx, "/api/v0/add", url.Values{"pin": {"true"}}, &buf, mw.FormDataContentType())
	if err != nil {
		return "", err
	}
	var result struct {
		Hash string `json:"Hash"`
	}
	if err := json.Unmarshal(out, &result); err != nil {
		return "", errors.Wrap(err, "could not decode add response")
	}
	return result.Hash, nil
}

// Cat fetches the whole object named by cid.
func (c *Client) Cat(ctx context.Context, cid string) ([]byte, error) {
	return c.post(ctx, "/api/v0/cat", url.Values{"arg": {cid}}, nil, "")
}

// Refs lists the direct block children of cid. The default deadline is
// the configured refs timeout unless the caller supplies a tighter one.
func (c *Client) Refs(ctx context.Context, cid string) ([]string, error) {
	ctx, cancel := ensureDeadline(ctx, params.CoordinatorConfig().RefsTimeout)
	defer cancel()
	out, err := c.post(ctx, "/api/v0/refs", url.Values{"arg": {cid}}, nil, "")
	if err != nil {
		return nil, err
	}
	// The daemon streams one JSON object per line.
	var refs []string
	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 1024*1024), 1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var entry struct {
			Ref string `json:"Ref"`
		}
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, errors.Wrap(err, "could not decode refs entry")
		}
		if entry.Ref != "" {
			refs = append(refs, entry.Ref)
		}
	}
	return refs, nil
}

// Block fetches the raw bytes of one block.
func (c *Client) Block(ctx context.Context, cid string) ([]byte, error) {
	ctx, cancel := ensureDeadline(ctx, params.CoordinatorConfig().BlockTimeout)
	defer cancel()
	return c.post(ctx, "/api/v0/block/get", url.Values{"arg": {cid}}, nil, "")
}

// Stat reports repository size and bandwidth counters.
func (c *Client) Stat(ctx context.Context) (*RepoStat, error) {
	repoOut, err := c.post(ctx, "/api/v0/repo/stat", nil, nil, "")
	if err != nil {
		return nil, err
	}
	var repo struct {
		RepoSize   int64 `json:"RepoSize"`
		NumObjects int64 `json:"NumObjects"`
	}
	if err := json.Unmarshal(repoOut, &repo); err != nil {
		return nil, errors.Wrap(err, "could not decode repo stat")
	}
	stat := &RepoStat{RepoSize: repo.RepoSize, NumObjects: repo.NumObjects}

	bwOut, err := c.post(ctx, "/api/v0/stats/bw", nil, nil, "")
	if err != nil {
		return nil, err
	}
	var bw struct {
		TotalIn  float64 `json:"TotalIn"`
		TotalOut float64 `json:"TotalOut"`
	}
	if err := json.Unmarshal(bwOut, &bw); err != nil {
		return nil, errors.Wrap(err, "could not decode bandwidth stat")
	}
	stat.BandwidthIn = bw.TotalIn
	stat.BandwidthOut = bw.TotalOut
	return stat, nil
}

// PeerID returns the daemon's peer identity.
func (c *Client) PeerID(ctx context.Context) (string, error) {
	out, err := c.post(ctx, "/api/v0/id", nil, nil, "")
	if err != nil {
		return "", err
	}
	var id struct {
		ID string `json:"ID"`
	}
	if err := json.Unmarshal(out, &id); err != nil {
		return "", errors.Wrap(err, "could not decode id response")
	}
	return id.ID, nil
}

// PinAdd pins a cid.
func (c *Client) PinAdd(ctx context.Context, cid string) error {
	_, err := c.post(ctx, "/api/v0/pin/add", url.Values{"arg": {cid}}, nil, "")
	return err
}

// PinRm unpins a cid.
func (c *Client) PinRm(ctx context.Context, cid string) error {
	_, err := c.post(ctx, "/api/v0/pin/rm", url.Values{"arg": {cid}}, nil, "")
	return err
}

// Pins lists recursive pins.
func (c *Client) Pins(ctx context.Context) ([]string, error) {
	out, err := c.post(ctx, "/api/v0/pin/ls", url.Values{"type": {"recursive"}}, nil, "")
	if err != nil {
		return nil, err
	}
	var result struct {
		Keys map[string]struct {
			Type string `json:"Type"`
		} `json:"Keys"`
	}
	if err := json.Unmarshal(out, &result); err != nil {
		return nil, errors.Wrap(err, "could not decode pin list")
	}
	pins := make([]string, 0, len(result.Keys))
	for cid := range result.Keys {
		pins = append(pins, cid)
	}
	return pins, nil
}

// IsOnline probes the daemon with a short deadline.
func (c *Client) IsOnline(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, err := c.PeerID(ctx)
	return err == nil
}

func ensureDeadline(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
