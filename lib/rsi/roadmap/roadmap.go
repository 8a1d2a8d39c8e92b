// Package roadmap queries the public development roadmap.
package roadmap

import (
	"context"
	"time"

	"gorsi/lib/rsi/graphql"
	"gorsi/lib/rsi/rsierr"
)

const DefaultEndpoint = "/graphql"

const dateLayout = "2006-01-02"

const roadmapQuery = `
query Roadmap($startDate: String!, $endDate: String!, $context: String) {
  roadmap(startDate: $startDate, endDate: $endDate, context: $context) {
    ...Team
    deliverables {
      ...Deliverable
      projects {
        ...Project
        __typename
      }
      timeAllocations {
        ...TimeAllocation
        discipline {
          ...Discipline
          __typename
        }
        __typename
      }
      __typename
    }
    __typename
  }
}

fragment Team on Team {
  title
  description
  __typename
}

fragment Deliverable on Deliverable {
  title
  description
  startDate
  endDate
  __typename
}

fragment Project on Project {
  title
  logo
  __typename
}

fragment TimeAllocation on TimeAllocation {
  startDate
  endDate
  __typename
}

fragment Discipline on Discipline {
  title
  color
  countMembers
  __typename
}
`

type Discipline struct {
	Title        string `json:"title"`
	Color        string `json:"color"`
	CountMembers int    `json:"countMembers"`
}

type TimeAllocation struct {
	StartDate  string     `json:"startDate"`
	EndDate    string     `json:"endDate"`
	Discipline Discipline `json:"discipline"`
}

type Project struct {
	Title string `json:"title"`
	Logo  string `json:"logo"`
}

type Deliverable struct {
	Title           string           `json:"title"`
	Description     string           `json:"description"`
	StartDate       string           `json:"startDate"`
	EndDate         string           `json:"endDate"`
	Projects        []Project        `json:"projects"`
	TimeAllocations []TimeAllocation `json:"timeAllocations"`
}

// Team is a development team and what it is working on.
type Team struct {
	Title        string        `json:"title"`
	Description  string        `json:"description"`
	Deliverables []Deliverable `json:"deliverables"`
}

type variables struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

type result struct {
	Roadmap []Team `json:"roadmap"`
}

type Roadmap struct {
	poster   graphql.Poster
	endpoint string
}

// New creates a Roadmap that queries endpoint, an empty endpoint uses DefaultEndpoint.
func New(poster graphql.Poster, endpoint string) Roadmap {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return Roadmap{poster: poster, endpoint: endpoint}
}

// Fetch returns the teams and their deliverables scheduled between start and end.
func (r Roadmap) Fetch(ctx context.Context, start, end time.Time) ([]Team, error) {
	if end.Before(start) {
		return nil, &rsierr.ValidationError{
			Field:  "end date",
			Value:  end.Format(dateLayout),
			Reason: "must not be before the start date",
		}
	}
	out, err := graphql.Query[variables, result](
		ctx,
		r.poster,
		r.endpoint,
		"Roadmap",
		roadmapQuery,
		variables{
			StartDate: start.Format(dateLayout),
			EndDate:   end.Format(dateLayout),
		},
	)
	if err != nil {
		return nil, err
	}
	return out.Roadmap, nil
}
