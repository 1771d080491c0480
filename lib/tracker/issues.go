// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tracker

import (
	"context"
	"fmt"

	"github.com/bureau-foundation/lisa/lib/plan"
)

// Child is a child issue of a unit.
type Child struct {
	// Key is the tracker's internal ID.
	Key   string
	ID    string
	Title string
	State string

	// BlockedBy lists identifiers of issues that block this one.
	BlockedBy []string
}

// Unit is the top-level issue a run works on.
type Unit struct {
	// Key is the tracker's internal ID. Comments are addressed by it.
	Key string

	// ID is the human identifier, e.g. "ENG-123".
	ID          string
	Title       string
	Description string
	URL         string
	ProjectID   string
	Children    []Child
}

// PlanUnits converts the children for dependency ordering.
func (unit Unit) PlanUnits() []plan.Unit {
	units := make([]plan.Unit, len(unit.Children))
	for index, child := range unit.Children {
		units[index] = plan.Unit{
			ID:        child.ID,
			Title:     child.Title,
			BlockedBy: append([]string(nil), child.BlockedBy...),
		}
	}
	return units
}

// ChildDetails is the subset of a child issue used as step context.
type ChildDetails struct {
	ID          string
	Title       string
	Description string
}

const fetchUnitQuery = `query($id: String!) {
  issue(id: $id) {
    id
    identifier
    title
    description
    url
    project { id }
    children {
      nodes {
        id
        identifier
        title
        state { name }
        inverseRelations {
          nodes {
            type
            issue { identifier }
          }
        }
      }
    }
  }
}`

type issueNode struct {
	ID          string `json:"id"`
	Identifier  string `json:"identifier"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	Project     *struct {
		ID string `json:"id"`
	} `json:"project"`
	Children struct {
		Nodes []childNode `json:"nodes"`
	} `json:"children"`
}

type childNode struct {
	ID         string `json:"id"`
	Identifier string `json:"identifier"`
	Title      string `json:"title"`
	State      *struct {
		Name string `json:"name"`
	} `json:"state"`
	InverseRelations struct {
		Nodes []struct {
			Type  string `json:"type"`
			Issue *struct {
				Identifier string `json:"identifier"`
			} `json:"issue"`
		} `json:"nodes"`
	} `json:"inverseRelations"`
}

// FetchUnit reads an issue, its children, and the "blocks" relations
// pointing at each child.
func (client *Client) FetchUnit(ctx context.Context, id string) (Unit, error) {
	var data struct {
		Issue *issueNode `json:"issue"`
	}
	if err := client.do(ctx, fetchUnitQuery, map[string]any{"id": id}, &data); err != nil {
		return Unit{}, fmt.Errorf("fetching %s: %w", id, err)
	}
	if data.Issue == nil {
		return Unit{}, fmt.Errorf("fetching %s: %w", id, ErrNotFound)
	}

	issue := data.Issue
	unit := Unit{
		Key:         issue.ID,
		ID:          issue.Identifier,
		Title:       issue.Title,
		Description: issue.Description,
		URL:         issue.URL,
	}
	if issue.Project != nil {
		unit.ProjectID = issue.Project.ID
	}
	for _, node := range issue.Children.Nodes {
		child := Child{Key: node.ID, ID: node.Identifier, Title: node.Title}
		if node.State != nil {
			child.State = node.State.Name
		}
		for _, relation := range node.InverseRelations.Nodes {
			if relation.Type == "blocks" && relation.Issue != nil {
				child.BlockedBy = append(child.BlockedBy, relation.Issue.Identifier)
			}
		}
		unit.Children = append(unit.Children, child)
	}
	client.logger.Debug("fetched unit", "unit", unit.ID, "children", len(unit.Children))
	return unit, nil
}

const fetchChildQuery = `query($id: String!) {
  issue(id: $id) {
    identifier
    title
    description
  }
}`

// FetchChild reads the title and description of a child issue.
func (client *Client) FetchChild(ctx context.Context, id string) (ChildDetails, error) {
	var data struct {
		Issue *struct {
			Identifier  string `json:"identifier"`
			Title       string `json:"title"`
			Description string `json:"description"`
		} `json:"issue"`
	}
	if err := client.do(ctx, fetchChildQuery, map[string]any{"id": id}, &data); err != nil {
		return ChildDetails{}, fmt.Errorf("fetching %s: %w", id, err)
	}
	if data.Issue == nil {
		return ChildDetails{}, fmt.Errorf("fetching %s: %w", id, ErrNotFound)
	}
	return ChildDetails{
		ID:          data.Issue.Identifier,
		Title:       data.Issue.Title,
		Description: data.Issue.Description,
	}, nil
}
