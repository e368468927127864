package types

import "time"

// CommandTemplate represents a saved, reusable command with declared
// substitutable parameters
type CommandTemplate struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Category  string      `json:"category,omitempty"`
	Command   string      `json:"command"`
	Params    []Parameter `json:"params,omitempty"`
	Tags      []string    `json:"tags,omitempty"`
	System    bool        `json:"system"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Parameter represents a declared template parameter. Name must match a
// placeholder token in the template body.
type Parameter struct {
	Name        string `json:"name"`
	Required    bool   `json:"required"`
	Default     string `json:"default,omitempty"`
	Description string `json:"description,omitempty"`
}
