// Package graphql sends the batched graphql queries used by the site's newer
// apis.
package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"gorsi/lib/rsi/rsierr"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("rsi/graphql")

// Poster is the part of a session.Session a query needs.
type Poster interface {
	PostJSON(ctx context.Context, path string, body any) (*resty.Response, error)
}

type queryObject struct {
	Name      string `json:"operationName"`
	Variables any    `json:"variables"`
	Query     string `json:"query"`
}

type Error struct {
	Message string   `json:"message"`
	Path    []any    `json:"path,omitempty"`
	Code    string   `json:"code,omitempty"`
	Fields  []string `json:"fields,omitempty"`
}

type queryResult[Data any] struct {
	Data   Data    `json:"data"`
	Errors []Error `json:"errors"`
}

// Query posts a single named query to endpoint and returns its data.
func Query[Input, Output any](
	ctx context.Context,
	poster Poster,
	endpoint,
	name,
	query string,
	variables Input,
) (Output, error) {
	ctx, span := tracer.Start(ctx, fmt.Sprintf("graphql:%s", name))
	defer span.End()

	span.SetAttributes(attribute.String("custom.name", name))
	serialized, err := json.Marshal(variables)
	if err == nil {
		span.SetAttributes(attribute.String("custom.variables", string(serialized)))
	}

	var defaultOut Output

	res, err := poster.PostJSON(ctx, endpoint, []queryObject{{
		Name:      name,
		Variables: variables,
		Query:     query,
	}})
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch")
		return defaultOut, err
	}

	body := bytes.TrimSpace(res.Body())
	var results []queryResult[Output]
	if len(body) > 0 && body[0] == '{' {
		var single queryResult[Output]
		err = json.Unmarshal(body, &single)
		results = append(results, single)
	} else {
		err = json.Unmarshal(body, &results)
	}
	if err != nil {
		span.SetStatus(codes.Error, "failed to parse json response")
		return defaultOut, rsierr.NewProtocolError(endpoint, fmt.Sprintf("decode %s response", name), body, err)
	}
	if len(results) == 0 {
		span.SetStatus(codes.Error, "empty response")
		return defaultOut, rsierr.NewProtocolError(endpoint, fmt.Sprintf("empty %s response", name), body, nil)
	}

	result := results[0]
	if len(result.Errors) > 0 {
		messages := make([]string, len(result.Errors))
		for i, e := range result.Errors {
			messages[i] = e.Message
		}
		reason := fmt.Sprintf("%s: %s", name, strings.Join(messages, "; "))
		span.SetStatus(codes.Error, reason)
		return defaultOut, rsierr.NewProtocolError(endpoint, reason, body, nil)
	}
	return result.Data, nil
}
