package entity

import (
	"encoding/json"
	"time"
)

// Organization is the tenant boundary. Everything except global templates
// hangs off exactly one organization.
type Organization struct {
	ID          string     `json:"id" gorm:"primaryKey;size:36"`
	Name        string     `json:"name" gorm:"size:200;not null"`
	IsActive    bool       `json:"is_active" gorm:"default:true"`
	TrialEndsAt *time.Time `json:"trial_ends_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	Sites []Site `json:"sites,omitempty" gorm:"foreignKey:OrganizationID"`
}

func (Organization) TableName() string {
	return "organizations"
}

// Site is one physical location of an organization. Timezone is an IANA
// name; empty means UTC.
type Site struct {
	ID             string `json:"id" gorm:"primaryKey;size:36"`
	OrganizationID string `json:"organization_id" gorm:"size:36;not null;index"`
	Name           string `json:"name" gorm:"size:200;not null"`
	Address        string `json:"address" gorm:"size:500"`
	Timezone       string `json:"timezone" gorm:"size:64"`
	IsActive       bool   `json:"is_active" gorm:"default:true"`

	// Report schedule. ReportTime is a site-local HH:MM string; recipients
	// is a JSON array of webhook URLs.
	ReportDailyEnabled  bool            `json:"report_daily_enabled" gorm:"default:false"`
	ReportWeeklyEnabled bool            `json:"report_weekly_enabled" gorm:"default:false"`
	ReportTime          string          `json:"report_time" gorm:"size:5"`
	ReportRecipients    json.RawMessage `json:"report_recipients" gorm:"type:jsonb;default:'[]'"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Organization *Organization `json:"organization,omitempty" gorm:"foreignKey:OrganizationID"`
}

func (Site) TableName() string {
	return "sites"
}

// Location resolves the site timezone, falling back to UTC when the site
// has none configured or the name does not load.
func (s *Site) Location() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// RecipientList decodes the report recipient webhook URLs.
func (s *Site) RecipientList() []string {
	if len(s.ReportRecipients) == 0 {
		return nil
	}
	var urls []string
	if err := json.Unmarshal(s.ReportRecipients, &urls); err != nil {
		return nil
	}
	return urls
}
