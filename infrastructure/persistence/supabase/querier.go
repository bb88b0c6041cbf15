// Package supabase reads posts and the social graph from the Supabase
// (PostgREST) tables that own them.
package supabase

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"
)

// Filter is one PostgREST filter. Values is used by "in", Value by "eq".
type Filter struct {
	Column string
	Op     string
	Value  string
	Values []string
}

// Eq filters column = value
func Eq(column, value string) Filter { return Filter{Column: column, Op: "eq", Value: value} }

// In filters column in values
func In(column string, values []string) Filter { return Filter{Column: column, Op: "in", Values: values} }

// Query describes a table read
type Query struct {
	Table      string
	Columns    string
	Filters    []Filter
	OrderBy    string
	Descending bool
	Limit      int
}

// Querier runs table reads and decodes the rows into out
type Querier interface {
	Select(ctx context.Context, q Query, out interface{}) error
}

// PostgrestQuerier runs queries through the Supabase client
type PostgrestQuerier struct {
	client *supabase.Client
}

// NewPostgrestQuerier creates a querier authenticated with the service role key
func NewPostgrestQuerier(url, serviceRoleKey string) (*PostgrestQuerier, error) {
	client, err := supabase.NewClient(url, serviceRoleKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}
	return &PostgrestQuerier{client: client}, nil
}

// Client exposes the underlying Supabase client
func (p *PostgrestQuerier) Client() *supabase.Client {
	return p.client
}

// Select runs the query. The client has no context support, so the request runs
// in its own goroutine and is abandoned when ctx is done.
func (p *PostgrestQuerier) Select(ctx context.Context, q Query, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fb := p.client.From(q.Table).Select(q.Columns, "", false)
	for _, f := range q.Filters {
		switch f.Op {
		case "eq":
			fb = fb.Eq(f.Column, f.Value)
		case "in":
			fb = fb.In(f.Column, f.Values)
		default:
			return fmt.Errorf("unsupported filter %q on %s", f.Op, f.Column)
		}
	}
	if q.OrderBy != "" {
		fb = fb.Order(q.OrderBy, &postgrest.OrderOpts{Ascending: !q.Descending})
	}
	if q.Limit > 0 {
		fb = fb.Limit(q.Limit, "")
	}

	type result struct {
		body []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		body, _, err := fb.Execute()
		done <- result{body: body, err: err}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-done:
		if res.err != nil {
			return fmt.Errorf("select %s: %w", q.Table, res.err)
		}
		if err := json.Unmarshal(res.body, out); err != nil {
			return fmt.Errorf("decode %s rows: %w", q.Table, err)
		}
		return nil
	}
}
