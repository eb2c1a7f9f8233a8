package models

import "time"

type IntegrationEntityMap struct {
	TenantID         string
	Provider         string
	EntityType       string
	ProviderEntityID string
	LocalEntityID    string
	Metadata         []byte
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
