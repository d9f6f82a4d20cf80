package relay

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dsbridge/dsbridge/internal/dserr"
	"github.com/dsbridge/dsbridge/internal/session"
)

// HTTPOptions configures the HTTP relay client. Target is either a base
// URL or a logical name resolved through Routes.
type HTTPOptions struct {
	Target string
	// Routes maps logical names to base URLs.
	Routes map[string]string

	// Client certificate and the CA bundle the peer is verified against.
	CertFile string
	KeyFile  string
	CAFile   string

	Conn session.Config

	// Timeout bounds each request; zero means 5 minutes.
	Timeout time.Duration
}

// relayResponse is the peer's uniform body shape.
type relayResponse struct {
	Error   bool            `json:"error"`
	Details json.RawMessage `json:"details"`
}

// HTTPClient sends operations to a relay peer as POST /ds/<operation>.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	conn    map[string]any
	log     session.Logger
}

// NewHTTPClient builds the mTLS relay client.
func NewHTTPClient(opts HTTPOptions, log session.Logger) (*HTTPClient, error) {
	const op = "relay.http"

	if log == nil {
		log = session.NopLogger{}
	}

	baseURL := opts.Target
	if mapped, ok := opts.Routes[opts.Target]; ok {
		baseURL = mapped
	}
	if !strings.HasPrefix(baseURL, "https://") && !strings.HasPrefix(baseURL, "http://") {
		return nil, dserr.New(op, dserr.KindValidation, "target %q resolves to no base URL", opts.Target)
	}

	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if opts.CertFile != "" || opts.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(opts.CertFile, opts.KeyFile)
		if err != nil {
			return nil, dserr.Wrap(op, dserr.KindValidation, err, "load client certificate")
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	if opts.CAFile != "" {
		pem, err := os.ReadFile(opts.CAFile)
		if err != nil {
			return nil, dserr.Wrap(op, dserr.KindValidation, err, "read CA bundle")
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, dserr.New(op, dserr.KindValidation, "CA bundle %q holds no certificates", opts.CAFile)
		}
		tlsConfig.RootCAs = pool
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout:   timeout,
			Transport: &http.Transport{TLSClientConfig: tlsConfig},
		},
		conn: connParams(opts.Conn),
		log:  log,
	}, nil
}

// Invoke posts the operation to the peer. Connection and operation
// parameters travel merged in one JSON body; operation keys win on
// collision.
func (c *HTTPClient) Invoke(ctx context.Context, op string, params Params) (any, error) {
	if _, ok := handlers[op]; !ok {
		return nil, dserr.New("relay", dserr.KindValidation, "unknown operation %q", op)
	}

	body := make(map[string]any, len(c.conn)+len(params))
	for k, v := range c.conn {
		body[k] = v
	}
	for k, v := range params {
		body[k] = v
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, dserr.Wrap(op, dserr.KindValidation, err, "encode request")
	}

	url := fmt.Sprintf("%s/ds/%s", c.baseURL, op)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, dserr.Wrap(op, dserr.KindValidation, err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	c.log.Debug("relay request", map[string]any{"operation": op, "url": url})

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, dserr.Wrap(op, dserr.KindConnectivity, err, "relay peer unreachable")
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, dserr.Wrap(op, dserr.KindConnectivity, err, "read relay response")
	}

	var decoded relayResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		if resp.StatusCode >= 300 {
			return nil, dserr.New(op, dserr.KindDirectoryRejected, "relay peer returned %s", resp.Status)
		}
		return nil, dserr.Wrap(op, dserr.KindValidation, err, "malformed relay response")
	}
	if decoded.Error || resp.StatusCode >= 300 {
		return nil, dserr.New(op, dserr.KindDirectoryRejected, "%s", detailsMessage(decoded.Details))
	}
	if len(decoded.Details) == 0 {
		return nil, nil
	}
	var out any
	if err := json.Unmarshal(decoded.Details, &out); err != nil {
		return nil, dserr.Wrap(op, dserr.KindValidation, err, "malformed relay details")
	}
	return ReviveTimes(out), nil
}

func detailsMessage(details json.RawMessage) string {
	var s string
	if err := json.Unmarshal(details, &s); err == nil {
		return s
	}
	return string(details)
}
