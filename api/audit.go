// Package api defines public API contracts for vecshm.
package api

// Audit records channel events.
type Audit interface {
	LogEvent(event string, details map[string]interface{}) error
}

// NopAudit discards events.
type NopAudit struct{}

func (NopAudit) LogEvent(string, map[string]interface{}) error {
	return nil
}
