package dto

import "github.com/customeros/mailprobe/internal/models"

// ValidationRequest is the body accepted by the single and batch endpoints.
// Omitted check flags default to enabled.
type ValidationRequest struct {
	Emails          []string `json:"emails" validate:"required,min=1,dive,required"`
	CheckMX         *bool    `json:"check_mx"`
	CheckSMTP       *bool    `json:"check_smtp"`
	CheckDisposable *bool    `json:"check_disposable"`
	CheckCatchAll   *bool    `json:"check_catch_all"`
	CheckBlacklist  *bool    `json:"check_blacklist"`
}

func (r ValidationRequest) Flags() models.ValidationFlags {
	orTrue := func(v *bool) bool {
		return v == nil || *v
	}
	return models.ValidationFlags{
		CheckMX:         orTrue(r.CheckMX),
		CheckSMTP:       orTrue(r.CheckSMTP),
		CheckDisposable: orTrue(r.CheckDisposable),
		CheckCatchAll:   orTrue(r.CheckCatchAll),
		CheckBlacklist:  orTrue(r.CheckBlacklist),
	}
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type CacheViewResponse struct {
	CacheType    string         `json:"cache_type"`
	TotalEntries int            `json:"total_entries"`
	Entries      map[string]any `json:"entries"`
}

type CacheClearResponse struct {
	CacheType      string `json:"cache_type"`
	ClearedEntries int    `json:"cleared_entries"`
	Message        string `json:"message"`
}

type HealthResponse struct {
	Status string `json:"status"`
}
