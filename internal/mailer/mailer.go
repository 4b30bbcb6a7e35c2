package mailer

import "embed"

const (
	FromName               = "AdPilot"
	maxRetries             = 3
	CampaignFailedTemplate = "campaign_failed.tmpl"
)

//go:embed "templates"
var FS embed.FS

type Client interface {
	Send(templateFile, username, email string, data any) (int, error)
}
