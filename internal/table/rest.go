package table

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"rocket-console/internal/schema"
	"rocket-console/internal/transport"
)

// Doer is the slice of the transport client the REST mutations need.
type Doer interface {
	Do(ctx context.Context, method, path string, body, out any) (*transport.Envelope, error)
}

// REST builds toggle and delete calls against a page's endpoint:
// PUT {endpoint}/{id}/update-status with {toggleField: !current}, and
// DELETE {endpoint}/{id} unless the page overrides the target.
type REST struct {
	Client      Doer
	Endpoint    string
	ToggleField string
	Target      *schema.DeleteTarget
}

func (r REST) Toggle(ctx context.Context, id string, current bool) (bool, error) {
	path := strings.TrimRight(r.Endpoint, "/") + "/" + url.PathEscape(id) + "/update-status"
	env, err := r.Client.Do(ctx, http.MethodPut, path, map[string]any{r.ToggleField: !current}, nil)
	if err != nil {
		return false, err
	}
	return env.OK(), nil
}

func (r REST) Delete(ctx context.Context, id string) error {
	method, path := r.DeleteRequest(id)
	_, err := r.Client.Do(ctx, method, path, nil, nil)
	return err
}

// DeleteRequest resolves the method and path for deleting id. A custom URL
// may carry an {id} placeholder; without one the id is appended.
func (r REST) DeleteRequest(id string) (string, string) {
	method := http.MethodDelete
	path := strings.TrimRight(r.Endpoint, "/") + "/" + url.PathEscape(id)
	if r.Target != nil {
		if r.Target.Method != "" {
			method = strings.ToUpper(r.Target.Method)
		}
		if r.Target.URL != "" {
			if strings.Contains(r.Target.URL, "{id}") {
				path = strings.ReplaceAll(r.Target.URL, "{id}", url.PathEscape(id))
			} else {
				path = strings.TrimRight(r.Target.URL, "/") + "/" + url.PathEscape(id)
			}
		}
	}
	return method, path
}
