package notification

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Template is a reusable notice with {{key}} placeholders in subject and
// body. The channel and priority carry over to rendered notices.
type Template struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Subject  string  `json:"subject"`
	Body     string  `json:"body"`
	Channel  Channel `json:"channel"`
	Priority string  `json:"priority,omitempty"`
}

// Catalog holds the registered notice templates.
type Catalog struct {
	mu        sync.RWMutex
	templates map[string]Template
}

// NewCatalog returns a catalog with the registry's standard notices
// pre-registered.
func NewCatalog() *Catalog {
	c := &Catalog{templates: make(map[string]Template)}
	for _, t := range builtinTemplates {
		c.templates[t.ID] = t
	}
	return c
}

var builtinTemplates = []Template{
	{
		ID:       "recall-notice",
		Name:     "Recall Notice",
		Subject:  "Urgent: recall notice for your implanted device",
		Body:     "A recall has been issued for your implanted device ({{device_type}} {{model}}, serial {{serial_number}}). Reason: {{reason}}. Please contact your care team to arrange a review.",
		Channel:  ChannelEmail,
		Priority: "urgent",
	},
	{
		ID:      "implant-removed",
		Name:    "Implant Removed",
		Subject: "Device removal recorded",
		Body:    "The removal of your implanted device ({{device_type}} {{model}}) on {{removal_date}} has been recorded. Reason: {{reason}}.",
		Channel: ChannelEmail,
	},
	{
		ID:      "maintenance-due",
		Name:    "Maintenance Due",
		Subject: "Scheduled maintenance due for your implanted device",
		Body:    "Your implanted device ({{device_type}} {{model}}) is due for scheduled maintenance. Last service: {{last_service_date}}. Please contact {{provider}} to book an appointment.",
		Channel: ChannelEmail,
	},
	{
		ID:      "prescription-ready",
		Name:    "Prescription Ready",
		Subject: "Your prescription is ready",
		Body:    "A prescription for {{medication}} ({{dosage}}) has been issued to you by {{provider}}. Refills remaining: {{refills}}.",
		Channel: ChannelEmail,
	},
}

// Register adds or replaces a template.
func (c *Catalog) Register(t Template) {
	c.mu.Lock()
	c.templates[t.ID] = t
	c.mu.Unlock()
}

// List returns the registered templates ordered by ID.
func (c *Catalog) List() []Template {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Template, 0, len(c.templates))
	for _, t := range c.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Render instantiates the template into an unaddressed Notice carrying
// the template's channel and priority. Placeholders without a matching
// key stay in the text, so a thin fields map is visible in the output
// rather than silently blanked.
func (c *Catalog) Render(id string, fields map[string]string) (*Notice, error) {
	c.mu.RLock()
	t, ok := c.templates[id]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no template registered with id %q", id)
	}

	n := &Notice{
		Channel:  t.Channel,
		Subject:  t.Subject,
		Body:     t.Body,
		Template: t.ID,
		Fields:   fields,
		Priority: t.Priority,
	}
	for k, v := range fields {
		ph := "{{" + k + "}}"
		n.Subject = strings.ReplaceAll(n.Subject, ph, v)
		n.Body = strings.ReplaceAll(n.Body, ph, v)
	}
	return n, nil
}
