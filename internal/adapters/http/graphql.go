package http

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/geodash/internal/core/domain"
)

// buildSchema creates the GraphQL schema wired to our services. Resolvers
// read the caller's scope from the request context.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lon": &graphql.Field{Type: graphql.Float},
		},
	})

	recordType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Record",
		Fields: graphql.Fields{
			"id":          &graphql.Field{Type: graphql.String},
			"owner_id":    &graphql.Field{Type: graphql.String},
			"title":       &graphql.Field{Type: graphql.String},
			"description": &graphql.Field{Type: graphql.String},
			"category":    &graphql.Field{Type: graphql.String},
			"location":    &graphql.Field{Type: geoPointType},
			"visibility":  &graphql.Field{Type: graphql.String},
			"tags":        &graphql.Field{Type: graphql.NewList(graphql.String)},
			"version":     &graphql.Field{Type: graphql.Int},
			"distance":    &graphql.Field{Type: graphql.Float},
			"created_at":  &graphql.Field{Type: graphql.DateTime},
			"updated_at":  &graphql.Field{Type: graphql.DateTime},
		},
	})

	recordPageType := graphql.NewObject(graphql.ObjectConfig{
		Name: "RecordPage",
		Fields: graphql.Fields{
			"data":   &graphql.Field{Type: graphql.NewList(recordType)},
			"total":  &graphql.Field{Type: graphql.Int},
			"offset": &graphql.Field{Type: graphql.Int},
			"limit":  &graphql.Field{Type: graphql.Int},
		},
	})

	chartType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Chart",
		Fields: graphql.Fields{
			"id":     &graphql.Field{Type: graphql.String},
			"kind":   &graphql.Field{Type: graphql.String},
			"title":  &graphql.Field{Type: graphql.String},
			"labels": &graphql.Field{Type: graphql.NewList(graphql.String)},
			"datasets": &graphql.Field{Type: graphql.NewList(graphql.NewObject(graphql.ObjectConfig{
				Name: "Dataset",
				Fields: graphql.Fields{
					"label": &graphql.Field{Type: graphql.String},
					"data":  &graphql.Field{Type: graphql.NewList(graphql.Float)},
				},
			}))},
		},
	})

	mapViewType := graphql.NewObject(graphql.ObjectConfig{
		Name: "MapView",
		Fields: graphql.Fields{
			"center": &graphql.Field{Type: geoPointType},
			"zoom":   &graphql.Field{Type: graphql.Int},
			"source": &graphql.Field{Type: graphql.String},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"records": &graphql.Field{
				Type:        recordPageType,
				Description: "One page of records visible to the caller",
				Args: graphql.FieldConfigArgument{
					"category": &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: ""},
					"query":    &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: ""},
					"mine":     &graphql.ArgumentConfig{Type: graphql.Boolean, DefaultValue: false},
					"sort":     &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: ""},
					"offset":   &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
					"limit":    &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 50},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					scope, err := scopeFrom(p)
					if err != nil {
						return nil, err
					}
					page, err := deps.Records.List(p.Context, scope, domain.RecordFilter{
						Category:  p.Args["category"].(string),
						Query:     p.Args["query"].(string),
						OwnerOnly: p.Args["mine"].(bool),
						Sort:      domain.RecordSort(p.Args["sort"].(string)),
						Offset:    p.Args["offset"].(int),
						Limit:     p.Args["limit"].(int),
					})
					if err != nil {
						return nil, publicErr(err)
					}
					return map[string]interface{}{
						"data": page.Records, "total": page.Total, "offset": page.Offset, "limit": page.Limit,
					}, nil
				},
			},
			"record": &graphql.Field{
				Type:        recordType,
				Description: "Get a record by ID",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					scope, err := scopeFrom(p)
					if err != nil {
						return nil, err
					}
					r, err := deps.Records.Get(p.Context, scope, p.Args["id"].(string))
					if err != nil {
						return nil, publicErr(err)
					}
					return r, nil
				},
			},
			"nearby": &graphql.Field{
				Type:        graphql.NewList(recordType),
				Description: "Records near a location",
				Args: graphql.FieldConfigArgument{
					"lat":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"lon":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"radius": &graphql.ArgumentConfig{Type: graphql.Float, DefaultValue: 1000.0},
					"limit":  &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 20},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					scope, err := scopeFrom(p)
					if err != nil {
						return nil, err
					}
					recs, err := deps.Records.Nearby(p.Context, scope,
						p.Args["lat"].(float64), p.Args["lon"].(float64), p.Args["radius"].(float64), p.Args["limit"].(int))
					if err != nil {
						return nil, publicErr(err)
					}
					return recs, nil
				},
			},
			"charts": &graphql.Field{
				Type:        graphql.NewList(chartType),
				Description: "Dashboard charts for the caller",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					scope, err := scopeFrom(p)
					if err != nil {
						return nil, err
					}
					charts, err := deps.Charts.Charts(p.Context, scope)
					if err != nil {
						return nil, publicErr(err)
					}
					return charts, nil
				},
			},
			"mapView": &graphql.Field{
				Type:        mapViewType,
				Description: "Initial map viewport for the caller's session",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					sess, ok := p.Context.Value(sessionCtxKey).(*domain.Session)
					if !ok || sess == nil {
						return nil, errors.New("sign in required")
					}
					v, err := deps.Maps.ViewFor(p.Context, sess)
					if err != nil {
						return nil, publicErr(err)
					}
					return v, nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

const sessionCtxKey ctxKey = "session"

func scopeFrom(p graphql.ResolveParams) (domain.Scope, error) {
	sess, ok := p.Context.Value(sessionCtxKey).(*domain.Session)
	if !ok || sess == nil {
		return domain.Scope{}, errors.New("sign in required")
	}
	return sess.Scope(), nil
}

// publicErr hides internal error text from GraphQL clients.
func publicErr(err error) error {
	_, _, msg := classify(err)
	return errors.New(msg)
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		ctx := context.WithValue(c.UserContext(), sessionCtxKey, sessionFrom(c))
		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        ctx,
		})

		return c.JSON(result)
	}
}
