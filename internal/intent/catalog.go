package intent

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Agent is one Dialogflow agent variant the client may target.
type Agent struct {
	Key         string `json:"key"`
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Catalog is the static agent lookup table.
type Catalog struct {
	Agents       []Agent `json:"agents"`
	DefaultAgent string  `json:"defaultAgent"`
}

// ParseCatalog decodes a JSON array of agents. An empty input yields a
// catalog holding only defaultProject, when that is set.
func ParseCatalog(raw, defaultKey, defaultProject string) (Catalog, error) {
	var c Catalog
	if strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &c.Agents); err != nil {
			return Catalog{}, fmt.Errorf("intent: parse agents: %w", err)
		}
	}
	for i, a := range c.Agents {
		if a.ID == "" {
			return Catalog{}, fmt.Errorf("intent: agent %d has no id", i)
		}
		if a.Key == "" {
			c.Agents[i].Key = a.ID
		}
	}
	if len(c.Agents) == 0 && defaultProject != "" {
		c.Agents = []Agent{{Key: "default", ID: defaultProject, Name: "Default Agent", Description: "Retail banking support"}}
	}
	c.DefaultAgent = defaultKey
	if c.DefaultAgent == "" && len(c.Agents) > 0 {
		c.DefaultAgent = c.Agents[0].Key
	}
	return c, nil
}

// Project returns the Dialogflow project for agentID, matched by id or key.
// Unknown or empty selectors resolve to the default agent.
func (c Catalog) Project(agentID string) string {
	if agentID != "" {
		for _, a := range c.Agents {
			if a.ID == agentID || a.Key == agentID {
				return a.ID
			}
		}
	}
	for _, a := range c.Agents {
		if a.Key == c.DefaultAgent {
			return a.ID
		}
	}
	return ""
}
