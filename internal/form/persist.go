package form

import (
	"context"
	"net/url"
	"strings"

	"rocket-console/internal/transport"
)

// Submission is the serialized form handed to a Persister.
type Submission struct {
	Page     string
	Mode     Mode
	RecordID string
	Values   map[string]any
}

// Result is the backend's verdict on a submission.
type Result struct {
	Success bool
	Message string
	Fields  map[string]string
}

// Persister stores a submission. It is called exactly once per submit.
type Persister interface {
	Persist(ctx context.Context, s Submission) (Result, error)
}

// PersisterFunc adapts a function to Persister.
type PersisterFunc func(ctx context.Context, s Submission) (Result, error)

func (f PersisterFunc) Persist(ctx context.Context, s Submission) (Result, error) {
	return f(ctx, s)
}

// Sender is the slice of the transport client RESTPersister needs.
type Sender interface {
	Post(ctx context.Context, path string, body, out any) (*transport.Envelope, error)
	Put(ctx context.Context, path string, body, out any) (*transport.Envelope, error)
}

// RESTPersister sends every submission as multipart: create to
// {endpoint}/create (or {endpoint}{createLink}), edit to
// {endpoint}/edit/{id}.
type RESTPersister struct {
	Client     Sender
	Endpoint   string
	CreateLink string
}

func (p RESTPersister) Persist(ctx context.Context, s Submission) (Result, error) {
	body, err := transport.FormBody(s.Values)
	if err != nil {
		return Result{}, err
	}

	var env *transport.Envelope
	if s.Mode == ModeEdit {
		env, err = p.Client.Put(ctx, p.EditPath(s.RecordID), body, nil)
	} else {
		env, err = p.Client.Post(ctx, p.CreatePath(), body, nil)
	}
	if err != nil {
		return Result{}, err
	}
	return Result{Success: env.OK(), Message: env.Message}, nil
}

func (p RESTPersister) CreatePath() string {
	base := strings.TrimRight(p.Endpoint, "/")
	if p.CreateLink != "" {
		return base + p.CreateLink
	}
	return base + "/create"
}

func (p RESTPersister) EditPath(id string) string {
	return strings.TrimRight(p.Endpoint, "/") + "/edit/" + url.PathEscape(id)
}
