package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/fluxorio/symphony/pkg/core"
	"github.com/fluxorio/symphony/pkg/threadpool"
)

// NATS publishes every result as JSON. The job id travels in the
// X-Request-ID header so subscribers can correlate without decoding.
type NATS struct {
	nc      *nats.Conn
	subject string
}

// ConnectNATS dials url with name as the client connection name.
func ConnectNATS(url, name string) (*nats.Conn, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url, func(o *nats.Options) error {
		if name != "" {
			o.Name = name
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return nc, nil
}

// NewNATS publishes on subject through nc. The caller owns nc.
func NewNATS(nc *nats.Conn, subject string) (*NATS, error) {
	if nc == nil {
		return nil, errors.New("nats connection cannot be nil")
	}
	if subject == "" {
		return nil, errors.New("nats subject cannot be empty")
	}
	return &NATS{nc: nc, subject: subject}, nil
}

// Name implements the handler naming used in metrics.
func (s *NATS) Name() string { return "nats" }

// Handle implements threadpool.ResultHandler
func (s *NATS) Handle(_ context.Context, r threadpool.JobResult) error {
	data, err := core.JSONEncode(r)
	if err != nil {
		return err
	}

	msg := &nats.Msg{
		Subject: s.subject,
		Data:    data,
		Header:  nats.Header{},
	}
	msg.Header.Set(core.RequestIDHeader, r.JobID)

	if err := s.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish job %s: %w", r.JobID, err)
	}
	return nil
}

// Flush waits until the server has processed everything published so far.
func (s *NATS) Flush(ctx context.Context) error {
	return s.nc.FlushWithContext(ctx)
}
