// Package backend is the REST client for the radar monitoring backend.
//
// The backend is loosely typed: list endpoints return either a bare
// array or an envelope (records, data, content, items), and field names
// mix snake_case and camelCase. This package returns raw Records and
// leaves shaping to the entity and care packages. UnwrapList is the one
// place list envelopes are opened.
//
// Non-2xx responses become *HTTPError carrying the decoded body, which
// problem.Normalize understands.
//
// Usage:
//
//	client, err := backend.New(cfg.Backend)
//	if err != nil {
//	    return err
//	}
//	persons, err := client.ListPersons(ctx)
package backend
