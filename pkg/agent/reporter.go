// Package agent is the agent side of the websocket report channel.
package agent

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"deploy-reconciler/pkg/transport"
)

// ErrNoAck is returned when the connection drops before the receiver
// confirms a report.
var ErrNoAck = errors.New("connection closed before report_ack")

// Reporter delivers reports over one websocket connection and waits for the
// receiver's acknowledgement of each. Sends are serialised.
type Reporter struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	nodeID string
	log    *zap.Logger
}

// Endpoint turns a receiver base URL into the agent websocket URL.
func Endpoint(controller, nodeID string) (string, error) {
	if nodeID == "" {
		return "", errors.New("node id is required")
	}
	u, err := url.Parse(controller)
	if err != nil {
		return "", fmt.Errorf("parse controller url: %w", err)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/api/v1/ws/agent"
	q := u.Query()
	q.Set("nodeId", nodeID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// TLSConfig builds the client side TLS settings; all arguments are optional.
func TLSConfig(caFile, certFile, keyFile string, insecure bool) (*tls.Config, error) {
	cfg := &tls.Config{InsecureSkipVerify: insecure} //nolint:gosec
	if caFile != "" {
		pool := x509.NewCertPool()
		caData, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("read ca file: %w", err)
		}
		pool.AppendCertsFromPEM(caData)
		cfg.RootCAs = pool
	}
	if certFile != "" && keyFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("load client cert: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}

// Dial connects to the receiver as nodeID. token may be empty when the
// receiver does not check agents.
func Dial(ctx context.Context, controller, nodeID, token string, tlsCfg *tls.Config, log *zap.Logger) (*Reporter, error) {
	if log == nil {
		log = zap.NewNop()
	}
	endpoint, err := Endpoint(controller, nodeID)
	if err != nil {
		return nil, err
	}
	dialer := *websocket.DefaultDialer
	dialer.TLSClientConfig = tlsCfg
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, resp, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return nil, fmt.Errorf("ws dial %s (status=%d): %w", endpoint, status, err)
	}
	log.Info("connected to receiver", zap.String("url", endpoint))
	return &Reporter{conn: conn, nodeID: nodeID, log: log}, nil
}

// Send writes one report body and blocks until the receiver acknowledges it
// or ctx ends. It returns the delivery id assigned by the receiver.
func (r *Reporter) Send(ctx context.Context, body []byte) (string, error) {
	if !json.Valid(body) {
		return "", errors.New("report body is not valid json")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	msg := transport.WSMessage{Type: transport.TypeReport, NodeID: r.nodeID, Payload: body}
	_ = r.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := r.conn.WriteJSON(msg); err != nil {
		return "", fmt.Errorf("ws send: %w", err)
	}

	_ = r.conn.SetReadDeadline(time.Time{})
	stop := context.AfterFunc(ctx, func() { _ = r.conn.SetReadDeadline(time.Now()) })
	defer stop()

	for {
		var in transport.WSMessage
		if err := r.conn.ReadJSON(&in); err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return "", ErrNoAck
			}
			return "", fmt.Errorf("%w: %w", ErrNoAck, err)
		}
		if in.Type != transport.TypeReportAck {
			r.log.Debug("ignoring receiver message", zap.String("type", in.Type))
			continue
		}
		var ack struct {
			ID string `json:"id"`
		}
		_ = json.Unmarshal(in.Payload, &ack)
		r.log.Debug("report acknowledged", zap.String("delivery", ack.ID))
		return ack.ID, nil
	}
}

func (r *Reporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return r.conn.Close()
}
